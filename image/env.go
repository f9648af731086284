package image

import "os"

// debugAssemblyUnloadEnv is the environment variable that, when present at
// registry construction, switches teardown from freeing an image's
// identity strings to renaming and retaining them for diagnostics.
const debugAssemblyUnloadEnv = "MONO_DEBUG_ASSEMBLY_UNLOAD"

func debugAssemblyUnloadEnabled() bool {
	_, ok := os.LookupEnv(debugAssemblyUnloadEnv)
	return ok
}
