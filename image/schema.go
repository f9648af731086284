package image

import (
	"fmt"

	"github.com/Purisky/mono/pe"
)

// Table IDs this package reads rows from or skips past while computing row
// offsets. Only a handful of tables (Module, ModuleRef, Assembly, File) are
// ever read for their content; the rest are here purely so their row width
// can be computed, which is required to locate any later table's base
// offset. This is the "primitive row-column decoder" collaborator the core
// table descriptor delegates to; it never touches method bodies, generic
// signatures, or type-system semantics.
const (
	tableModule                 = 0x00
	tableTypeRef                = 0x01
	tableTypeDef                = 0x02
	tableField                  = 0x04
	tableMethodDef              = 0x06
	tableParam                  = 0x08
	tableInterfaceImpl          = 0x09
	tableMemberRef              = 0x0A
	tableConstant               = 0x0B
	tableCustomAttribute        = 0x0C
	tableFieldMarshal           = 0x0D
	tableDeclSecurity           = 0x0E
	tableClassLayout            = 0x0F
	tableFieldLayout            = 0x10
	tableStandAloneSig          = 0x11
	tableEventMap               = 0x12
	tableEvent                  = 0x14
	tablePropertyMap            = 0x15
	tableProperty               = 0x17
	tableMethodSemantics        = 0x18
	tableMethodImpl             = 0x19
	tableModuleRef              = 0x1A
	tableTypeSpec               = 0x1B
	tableImplMap                = 0x1C
	tableFieldRVA               = 0x1D
	tableAssembly               = 0x20
	tableAssemblyProcessor      = 0x21
	tableAssemblyOS             = 0x22
	tableAssemblyRef            = 0x23
	tableAssemblyRefProcessor   = 0x24
	tableAssemblyRefOS          = 0x25
	tableFile                   = 0x26
	tableExportedType           = 0x27
	tableManifestResource       = 0x28
	tableNestedClass            = 0x29
	tableGenericParam           = 0x2A
	tableMethodSpec             = 0x2B
	tableGenericParamConstraint = 0x2C
)

// fileContainsNoMetadata marks a File table row whose module holds no
// managed metadata (a resource-only file); such rows are excluded from the
// module graph loader's valid name set.
const fileContainsNoMetadata = 0x0001

type colKind int

const (
	colU16 colKind = iota
	colU32
	colString
	colGUID
	colBlob
	colSimple
	colCoded
)

type column struct {
	kind         colKind
	simpleTarget int
	coded        codedIndexKind
}

type codedIndexKind int

const (
	codedTypeDefOrRef codedIndexKind = iota
	codedHasConstant
	codedHasCustomAttribute
	codedHasFieldMarshal
	codedHasDeclSecurity
	codedMemberRefParent
	codedHasSemantics
	codedMethodDefOrRef
	codedMemberForwarded
	codedImplementation
	codedCustomAttributeType
	codedResolutionScope
	codedTypeOrMethodDef
)

type codedIndexDef struct {
	tagBits int
	tables  []int // -1 marks an unused tag slot
}

var codedIndexDefs = map[codedIndexKind]codedIndexDef{
	codedTypeDefOrRef:        {tagBits: 2, tables: []int{tableTypeDef, tableTypeRef, tableTypeSpec}},
	codedHasConstant:         {tagBits: 2, tables: []int{tableField, tableParam, tableProperty}},
	codedHasCustomAttribute: {tagBits: 5, tables: []int{
		tableMethodDef, tableField, tableTypeRef, tableTypeDef, tableParam, tableInterfaceImpl,
		tableMemberRef, tableModule, tableDeclSecurity, tableProperty, tableEvent, tableStandAloneSig,
		tableModuleRef, tableTypeSpec, tableAssembly, tableAssemblyRef, tableFile, tableExportedType,
		tableManifestResource, tableGenericParam, tableGenericParamConstraint, tableMethodSpec,
	}},
	codedHasFieldMarshal:     {tagBits: 1, tables: []int{tableField, tableParam}},
	codedHasDeclSecurity:     {tagBits: 2, tables: []int{tableTypeDef, tableMethodDef, tableAssembly}},
	codedMemberRefParent:     {tagBits: 3, tables: []int{tableTypeDef, tableTypeRef, tableModuleRef, tableMethodDef, tableTypeSpec}},
	codedHasSemantics:        {tagBits: 1, tables: []int{tableEvent, tableProperty}},
	codedMethodDefOrRef:      {tagBits: 1, tables: []int{tableMethodDef, tableMemberRef}},
	codedMemberForwarded:     {tagBits: 1, tables: []int{tableField, tableMethodDef}},
	codedImplementation:      {tagBits: 2, tables: []int{tableFile, tableAssemblyRef, tableExportedType}},
	codedCustomAttributeType: {tagBits: 3, tables: []int{-1, -1, tableMethodDef, tableMemberRef, -1}},
	codedResolutionScope:     {tagBits: 2, tables: []int{tableModule, tableModuleRef, tableAssemblyRef, tableTypeRef}},
	codedTypeOrMethodDef:     {tagBits: 1, tables: []int{tableTypeDef, tableMethodDef}},
}

var tableSchema = map[int][]column{
	tableModule: {
		{kind: colU16}, {kind: colString}, {kind: colGUID}, {kind: colGUID}, {kind: colGUID},
	},
	tableTypeRef: {
		{kind: colCoded, coded: codedResolutionScope}, {kind: colString}, {kind: colString},
	},
	tableTypeDef: {
		{kind: colU32}, {kind: colString}, {kind: colString},
		{kind: colCoded, coded: codedTypeDefOrRef},
		{kind: colSimple, simpleTarget: tableField},
		{kind: colSimple, simpleTarget: tableMethodDef},
	},
	tableField: {
		{kind: colU16}, {kind: colString}, {kind: colBlob},
	},
	tableMethodDef: {
		{kind: colU32}, {kind: colU16}, {kind: colU16}, {kind: colString}, {kind: colBlob},
		{kind: colSimple, simpleTarget: tableParam},
	},
	tableParam: {
		{kind: colU16}, {kind: colU16}, {kind: colString},
	},
	tableInterfaceImpl: {
		{kind: colSimple, simpleTarget: tableTypeDef},
		{kind: colCoded, coded: codedTypeDefOrRef},
	},
	tableMemberRef: {
		{kind: colCoded, coded: codedMemberRefParent}, {kind: colString}, {kind: colBlob},
	},
	tableConstant: {
		{kind: colU16}, {kind: colCoded, coded: codedHasConstant}, {kind: colBlob},
	},
	tableCustomAttribute: {
		{kind: colCoded, coded: codedHasCustomAttribute},
		{kind: colCoded, coded: codedCustomAttributeType},
		{kind: colBlob},
	},
	tableFieldMarshal: {
		{kind: colCoded, coded: codedHasFieldMarshal}, {kind: colBlob},
	},
	tableDeclSecurity: {
		{kind: colU16}, {kind: colCoded, coded: codedHasDeclSecurity}, {kind: colBlob},
	},
	tableClassLayout: {
		{kind: colU16}, {kind: colU32}, {kind: colSimple, simpleTarget: tableTypeDef},
	},
	tableFieldLayout: {
		{kind: colU32}, {kind: colSimple, simpleTarget: tableField},
	},
	tableStandAloneSig: {
		{kind: colBlob},
	},
	tableEventMap: {
		{kind: colSimple, simpleTarget: tableTypeDef}, {kind: colSimple, simpleTarget: tableEvent},
	},
	tableEvent: {
		{kind: colU16}, {kind: colString}, {kind: colCoded, coded: codedTypeDefOrRef},
	},
	tablePropertyMap: {
		{kind: colSimple, simpleTarget: tableTypeDef}, {kind: colSimple, simpleTarget: tableProperty},
	},
	tableProperty: {
		{kind: colU16}, {kind: colString}, {kind: colBlob},
	},
	tableMethodSemantics: {
		{kind: colU16}, {kind: colSimple, simpleTarget: tableMethodDef}, {kind: colCoded, coded: codedHasSemantics},
	},
	tableMethodImpl: {
		{kind: colSimple, simpleTarget: tableTypeDef},
		{kind: colCoded, coded: codedMethodDefOrRef},
		{kind: colCoded, coded: codedMethodDefOrRef},
	},
	tableModuleRef: {
		{kind: colString},
	},
	tableTypeSpec: {
		{kind: colBlob},
	},
	tableImplMap: {
		{kind: colU16}, {kind: colCoded, coded: codedMemberForwarded}, {kind: colString},
		{kind: colSimple, simpleTarget: tableModuleRef},
	},
	tableFieldRVA: {
		{kind: colU32}, {kind: colSimple, simpleTarget: tableField},
	},
	tableAssembly: {
		{kind: colU32}, {kind: colU16}, {kind: colU16}, {kind: colU16}, {kind: colU16},
		{kind: colU32}, {kind: colBlob}, {kind: colString}, {kind: colString},
	},
	tableAssemblyProcessor: {
		{kind: colU32},
	},
	tableAssemblyOS: {
		{kind: colU32}, {kind: colU32}, {kind: colU32},
	},
	tableAssemblyRef: {
		{kind: colU16}, {kind: colU16}, {kind: colU16}, {kind: colU16}, {kind: colU32},
		{kind: colBlob}, {kind: colString}, {kind: colString}, {kind: colBlob},
	},
	tableAssemblyRefProcessor: {
		{kind: colU32}, {kind: colSimple, simpleTarget: tableAssemblyRef},
	},
	tableAssemblyRefOS: {
		{kind: colU32}, {kind: colU32}, {kind: colU32}, {kind: colSimple, simpleTarget: tableAssemblyRef},
	},
	tableFile: {
		{kind: colU32}, {kind: colString}, {kind: colBlob},
	},
	tableExportedType: {
		{kind: colU32}, {kind: colU32}, {kind: colString}, {kind: colString},
		{kind: colCoded, coded: codedImplementation},
	},
	tableManifestResource: {
		{kind: colU32}, {kind: colU32}, {kind: colString}, {kind: colCoded, coded: codedImplementation},
	},
	tableNestedClass: {
		{kind: colSimple, simpleTarget: tableTypeDef}, {kind: colSimple, simpleTarget: tableTypeDef},
	},
	tableGenericParam: {
		{kind: colU16}, {kind: colU16}, {kind: colCoded, coded: codedTypeOrMethodDef}, {kind: colString},
	},
	tableMethodSpec: {
		{kind: colCoded, coded: codedMethodDefOrRef}, {kind: colBlob},
	},
	tableGenericParamConstraint: {
		{kind: colSimple, simpleTarget: tableGenericParam}, {kind: colCoded, coded: codedTypeDefOrRef},
	},
}

func simpleIndexWidth(rows [pe.TableCount]uint32, target int) int {
	if target < 0 || target >= pe.TableCount {
		return 2
	}
	if rows[target] > 0xFFFF {
		return 4
	}
	return 2
}

func codedIndexWidth(rows [pe.TableCount]uint32, def codedIndexDef) int {
	var maxRows uint32
	for _, t := range def.tables {
		if t < 0 {
			continue
		}
		if rows[t] > maxRows {
			maxRows = rows[t]
		}
	}
	if maxRows >= uint32(1)<<uint(16-def.tagBits) {
		return 4
	}
	return 2
}

func columnWidth(c column, widths pe.HeapWidths, rows [pe.TableCount]uint32) int {
	switch c.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colString:
		if widths.StringWide {
			return 4
		}
		return 2
	case colGUID:
		if widths.GUIDWide {
			return 4
		}
		return 2
	case colBlob:
		if widths.BlobWide {
			return 4
		}
		return 2
	case colSimple:
		return simpleIndexWidth(rows, c.simpleTarget)
	case colCoded:
		return codedIndexWidth(rows, codedIndexDefs[c.coded])
	default:
		return 0
	}
}

// rowWidth implements pe.RowWidthFunc for every table this package knows
// the column layout of.
func rowWidth(tableID int, widths pe.HeapWidths, rows [pe.TableCount]uint32) (uint32, error) {
	cols, ok := tableSchema[tableID]
	if !ok {
		return 0, fmt.Errorf("image: no column schema for table %#x", tableID)
	}
	total := 0
	for _, c := range cols {
		total += columnWidth(c, widths, rows)
	}
	return uint32(total), nil
}

// rowOffset returns the absolute file offset of row rowIndex (0-based) of
// tableID, by summing the row-byte-width of every preceding table times its
// row count. It returns an error if any preceding table with a nonzero row
// count has no known column schema.
func rowOffset(th *pe.TableHeader, widths pe.HeapWidths, tableID, rowIndex int) (int, error) {
	offset := int(th.TablesBase)
	for id := 0; id < tableID; id++ {
		rows, ok := th.RowCount(id)
		if !ok || rows == 0 {
			continue
		}
		w, err := rowWidth(id, widths, th.Rows)
		if err != nil {
			return 0, err
		}
		offset += int(rows) * int(w)
	}
	w, err := rowWidth(tableID, widths, th.Rows)
	if err != nil {
		return 0, err
	}
	offset += rowIndex * int(w)
	return offset, nil
}
