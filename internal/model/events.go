package model

// Tag is a log event's integer discriminator. The set is closed and the
// numeric values are the wire format, so the order below is load-bearing.
type Tag int

const (
	CreateObjBoilerplate Tag = iota
	CreateArrayBoilerplate
	CreateObjectLiteral
	CreateArrayLiteral
	CreateNewObject
	CreateNewArray
	CreateContext
	CopyObject
	ChangePrototype
	NewField
	UptField
	DelField
	SetElem
	DelElem
	CowCopy
	ExpandArray
	CreateFunction
	GenFullCode
	GenOptCode
	GenOsrCode
	DisableOpt
	ReenableOpt
	OptFailed
	RegularDeopt
	DeoptAsInline
	ForceDeopt
	BeginDeoptOnMap
	GenDeoptMaps
	ElemToSlow
	PropToSlow
	ElemToFast
	PropToFast
	ElemTransition
	GCMoveObject
	GCMoveCode
	GCMoveShared
	GCMoveMap
	eventCount
)

var eventNames = [eventCount]string{
	CreateObjBoilerplate:   "CreateObjBoilerplate",
	CreateArrayBoilerplate: "CreateArrayBoilerplate",
	CreateObjectLiteral:    "CreateObjectLiteral",
	CreateArrayLiteral:     "CreateArrayLiteral",
	CreateNewObject:        "CreateNewObject",
	CreateNewArray:         "CreateNewArray",
	CreateContext:          "CreateContext",
	CopyObject:             "CopyObject",
	ChangePrototype:        "ChangePrototype",
	NewField:               "NewField",
	UptField:               "UptField",
	DelField:               "DelField",
	SetElem:                "SetElem",
	DelElem:                "DelElem",
	CowCopy:                "CowCopy",
	ExpandArray:            "ExpandArray",
	CreateFunction:         "CreateFunction",
	GenFullCode:            "GenFullCode",
	GenOptCode:             "GenOptCode",
	GenOsrCode:             "GenOsrCode",
	DisableOpt:             "DisableOpt",
	ReenableOpt:            "ReenableOpt",
	OptFailed:              "OptFailed",
	RegularDeopt:           "RegularDeopt",
	DeoptAsInline:          "DeoptAsInline",
	ForceDeopt:             "ForceDeopt",
	BeginDeoptOnMap:        "BeginDeoptOnMap",
	GenDeoptMaps:           "GenDeoptMaps",
	ElemToSlow:             "ElemToSlow",
	PropToSlow:             "PropToSlow",
	ElemToFast:             "ElemToFast",
	PropToFast:             "PropToFast",
	ElemTransition:         "ElemTransition",
	GCMoveObject:           "GCMoveObject",
	GCMoveCode:             "GCMoveCode",
	GCMoveShared:           "GCMoveShared",
	GCMoveMap:              "GCMoveMap",
}

func (t Tag) String() string {
	if t < 0 || t >= eventCount {
		return "unknown"
	}
	return eventNames[t]
}

var handlers = [eventCount]func(*Analyzer, *Scanner) error{
	CreateObjBoilerplate:   doCreateObjBoilerplate,
	CreateArrayBoilerplate: doCreateArrayBoilerplate,
	CreateObjectLiteral:    doCreateObjectLiteral,
	CreateArrayLiteral:     doCreateArrayLiteral,
	CreateNewObject:        doCreateNewObject,
	CreateNewArray:         doCreateNewArray,
	CreateContext:          doCreateContext,
	CopyObject:             doCopyObject,
	ChangePrototype:        doChangePrototype,
	NewField:               doNewField,
	UptField:               doUptField,
	DelField:               doDelField,
	SetElem:                doSetElem,
	DelElem:                doDelElem,
	CowCopy:                doCowCopy,
	ExpandArray:            doExpandArray,
	CreateFunction:         doCreateFunction,
	GenFullCode:            doGenFullCode,
	GenOptCode:             doGenOptCode,
	GenOsrCode:             doGenOsrCode,
	DisableOpt:             doDisableOpt,
	ReenableOpt:            doReenableOpt,
	OptFailed:              doOptFailed,
	RegularDeopt:           doRegularDeopt,
	DeoptAsInline:          doDeoptAsInline,
	ForceDeopt:             doForceDeopt,
	BeginDeoptOnMap:        doBeginDeoptOnMap,
	GenDeoptMaps:           doGenDeoptMaps,
	ElemToSlow:             doElemToSlow,
	PropToSlow:             doPropToSlow,
	ElemToFast:             doElemToFast,
	PropToFast:             doPropToFast,
	ElemTransition:         doElemTransition,
	GCMoveObject:           doGCMoveObject,
	GCMoveCode:             doGCMoveCode,
	GCMoveShared:           doGCMoveShared,
	GCMoveMap:              doGCMoveMap,
}
