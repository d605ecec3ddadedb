// Package tarmac implements the trace annotation engine: a single-pass
// state machine over a tarmac trace that reconstructs function entry and
// exit from instruction side effects (PUSH/POP/BL/BX/WFI), detects
// reduced-information trace mode, and emits the annotated trace.
//
// A tarmac trace is a timestamped log of instruction fetches, memory
// accesses and register writes produced during RTL simulation:
//
//	22225 ns IT 10000076 488e        LDR      r0,[pc,#568]  ; [0x100002b0]
//	22425 ns MR4_D 100002b0 2001ec00
//	22425 ns R r0 2001ec00
//
// The engine never alters the trace records themselves; every input line
// appears in the output exactly once, in order, possibly with banner blocks
// inserted around it and comments appended to it.
package tarmac

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Patch-Manager/tarmac-annotate/pkg/csource"
	"github.com/Patch-Manager/tarmac-annotate/pkg/listing"
)

// Token positions in a tarmac record. A normal instruction record carries
// the address at index 3 and the mnemonic at index 5; a reduced-information
// record shifts address and encoding one slot right behind the marker.
const (
	idxTransactionType = 2
	idxAddress         = 3
	idxReducedMarker   = 3
	idxReducedAddress  = 4
	idxReducedOpcode   = 5
	idxOpcode          = 5
	idxOpcodeParam     = 6
	idxBranchTarget    = 10
)

// Transaction type tokens.
const (
	ttInstruction = "IT"
	ttEvent       = "E"
	ttMemRead4    = "MR4_D"
	ttMemWrite4   = "MW4_D"
)

// reducedInfoMarker prefixes the event field of records produced while the
// core is not in Thumb state ("NOT_IN_THUMB_STATE").
const reducedInfoMarker = "NOT_IN"

// stackPointerMarker tags main-stack-pointer register writes.
const stackPointerMarker = "(MSP)"

// annotationPad aligns appended comments past the end of a trace record.
const annotationPad = "                        "

// sourceColumn is the column source-index text is aligned to on
// reconstructed reduced-information lines.
const sourceColumn = 60

// callTreeDepth is how many of the most recent stack frames the
// abbreviated call tree shows; older frames collapse to an ellipsis.
const callTreeDepth = 8

// Banner separators inserted around entry, resume and exit annotations.
// The return banner is reserved for future annotations.
var (
	BannerStart  = strings.Repeat("@", 120) + "\n"
	BannerReturn = strings.Repeat("#", 120) + "\n"
	BannerResume = strings.Repeat("<", 80) + "\n"
	BannerExit   = strings.Repeat(">", 80) + "\n"
)

// Options configure one annotation run. All tables are read-only during
// the pass.
type Options struct {
	// Symbols maps function entry addresses to names. Nil means no
	// functions are known.
	Symbols *listing.SymbolTable

	// Source maps instruction addresses to listing text, used to
	// annotate reconstructed reduced-information records when
	// AnnotateSource is set.
	Source listing.SourceIndex

	// Signatures provides recovered C prototypes for entry banners.
	Signatures csource.Table

	// Variables names known memory-mapped variables and registers by
	// data address.
	Variables VarDict

	// AnnotateSource enables inline listing text on reduced-information
	// records.
	AnnotateSource bool

	// StackWriter, when non-nil, receives every main-stack-pointer
	// register write annotated with the active function.
	StackWriter io.Writer

	// WFILeafRoutines are functions that reach WFI without ever
	// executing a matching POP; they are silently unwound when on top
	// of the call stack. Firmware-specific, so configuration data.
	WFILeafRoutines []string

	// Progress is invoked every ProgressInterval input lines with the
	// running line count. Purely observational.
	Progress         func(lines int)
	ProgressInterval int

	Logger *slog.Logger
}

// Summary is the end-of-run report.
type Summary struct {
	// FunctionsKnown is the symbol count from the listing.
	FunctionsKnown int

	// FunctionsExecuted counts functions entered via PUSH or called via
	// BL in the trace.
	FunctionsExecuted int

	// SymbolsMissing counts PUSH records whose address resolved to no
	// known function. A high count usually means the listing and the
	// trace are out of sync.
	SymbolsMissing int

	// ReducedInfo reports whether the trace switched to
	// reduced-information (not-in-Thumb-state) records.
	ReducedInfo bool

	Lines int
}

// Engine annotates one tarmac trace. State is carried line to line, so an
// engine is good for exactly one run.
type Engine struct {
	opts Options

	callStack []string

	// branchTarget records the function resolved from the most recent
	// BL. Link-register semantics: a new BL overwrites any pending
	// target, so one live slot is enough; kept as a stack to keep the
	// unwind shape uniform with callStack.
	branchTarget []string

	popPending   bool
	eventPending bool
	reducedInfo  bool

	// pendingResume carries a BL resume banner until the next
	// instruction or event record allows it to print.
	pendingResume string

	functionsExecuted int
	symbolsMissing    int
	lines             int
}

// New creates an engine for one annotation run.
func New(opts Options) *Engine {
	if opts.Symbols == nil {
		opts.Symbols = listing.NewSymbolTable()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{opts: opts}
}

// Run streams the trace from r to w, annotating line by line, and returns
// the run summary. The pass never fails on trace content; the only errors
// are I/O errors.
func (e *Engine) Run(r io.Reader, w io.Writer) (Summary, error) {
	out := bufio.NewWriter(w)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		e.step(scanner.Text(), out)

		e.lines++
		if e.opts.Progress != nil && e.opts.ProgressInterval > 0 && e.lines%e.opts.ProgressInterval == 0 {
			e.opts.Progress(e.lines)
		}
	}

	if err := scanner.Err(); err != nil {
		return e.summary(), fmt.Errorf("failed to read trace: %w", err)
	}

	if err := out.Flush(); err != nil {
		return e.summary(), fmt.Errorf("failed to write annotated trace: %w", err)
	}

	return e.summary(), nil
}

func (e *Engine) summary() Summary {
	return Summary{
		FunctionsKnown:    e.opts.Symbols.Len(),
		FunctionsExecuted: e.functionsExecuted,
		SymbolsMissing:    e.symbolsMissing,
		ReducedInfo:       e.reducedInfo,
		Lines:             e.lines,
	}
}

// step processes a single trace line: repair, dispatch, emit.
func (e *Engine) step(line string, out *bufio.Writer) {
	tokens := strings.Fields(line)

	var prefix, tree, after string

	if e.reducedInfo && len(tokens) == idxOpcodeParam &&
		strings.HasPrefix(tokens[idxReducedMarker], reducedInfoMarker) {
		line, tokens = e.repairReducedRecord(line, tokens)
	}

	switch {
	case len(tokens) > idxBranchTarget && tokens[idxOpcode] == "BL":
		after = e.branchAndLink(tokens)

	case len(tokens) >= idxOpcodeParam:
		prefix, tree, after = e.dispatch(line, tokens)

	case len(tokens) >= idxOpcode:
		tt := tokens[idxTransactionType]
		if tt == ttMemRead4 || tt == ttMemWrite4 {
			line = e.annotateVariableAccess(line, tokens, tt == ttMemWrite4)
		}
	}

	if prefix != "" {
		out.WriteString("\n")
		out.WriteString(prefix)
		out.WriteString(tree)
		out.WriteString("\n")
	}

	out.WriteString(line)
	out.WriteString("\n")

	if !e.eventPending {
		block := e.pendingResume + after
		e.pendingResume = ""

		if block != "" {
			out.WriteString("\n")
			out.WriteString(block)
			out.WriteString("\n")
		}
	}
}

// repairReducedRecord rewrites a not-in-Thumb-state record so the dispatch
// step sees a normal instruction layout. The reduced trace does not show
// PUSH/POP mnemonics, so they are reconstructed from the opcode encoding
// (b5xx pushes lr, bdxx pops pc, bf30 is WFI).
func (e *Engine) repairReducedRecord(line string, tokens []string) (string, []string) {
	instrAddress := tokens[idxReducedAddress]
	opcode := tokens[idxReducedOpcode]

	switch {
	case strings.HasPrefix(opcode, "b5"):
		tokens[idxAddress] = tokens[idxReducedAddress]
		tokens[idxAddress+1] = tokens[idxReducedOpcode]
		tokens[idxAddress+2] = "PUSH"
		tokens = append(tokens, "{pc}")

	case strings.HasPrefix(opcode, "bd"):
		tokens[idxAddress] = tokens[idxReducedAddress]
		tokens[idxAddress+1] = tokens[idxReducedOpcode]
		tokens[idxAddress+2] = "POP"
		tokens = append(tokens, "{pc}")

	case opcode == "bf30":
		tokens[idxReducedOpcode] = "WFI"

		if !e.opts.AnnotateSource {
			line = strings.TrimRight(line, " \t") + annotationPad + "; WFI"
		}
	}

	if e.opts.AnnotateSource {
		if text, ok := e.opts.Source[instrAddress]; ok {
			line = fmt.Sprintf("%-*s%s", sourceColumn, strings.TrimRight(line, " \t"), text)
		}
	}

	return line, tokens
}

// branchAndLink handles a long-form BL record. A resolved target arms the
// branch slot and defers the resume banner until the next instruction or
// event record; memory-access records between the branch and the next
// fetch must not carry it.
func (e *Engine) branchAndLink(tokens []string) (after string) {
	e.functionsExecuted++
	after = BannerResume

	address := strings.TrimPrefix(tokens[idxBranchTarget], "0x")

	if name, ok := e.opts.Symbols.NameAt(address); ok {
		e.branchTarget = e.branchTarget[:0]
		e.branchTarget = append(e.branchTarget, name)

		e.pendingResume = name + "\n" + BannerResume
		e.eventPending = true
		after = ""
	}

	return after
}

// dispatch handles mid-length records: deferral bookkeeping, opcode
// handling and the stack side stream.
func (e *Engine) dispatch(line string, tokens []string) (prefix, tree, after string) {
	tt := tokens[idxTransactionType]
	isSync := tt == ttInstruction || tt == ttEvent

	if e.eventPending && isSync {
		e.eventPending = false
	}

	if e.popPending && isSync {
		prefix = BannerResume
		e.popPending = false

		if n := len(e.callStack); n > 0 {
			prefix = e.callStack[n-1] + " resuming...\n" + BannerResume
		}
	}

	switch tokens[idxOpcode] {
	case "PUSH":
		e.popPending = false
		e.pendingResume = ""
		prefix, tree = e.functionEntry(prefix, tokens)

	case "POP":
		after = BannerExit
		if n := len(e.callStack); n > 0 {
			name := e.callStack[n-1]
			e.callStack = e.callStack[:n-1]
			after = name + " exiting...\n" + BannerExit
			e.popPending = true
		}

	case "BX":
		after = BannerExit
		if n := len(e.branchTarget); n > 0 {
			name := e.branchTarget[n-1]
			e.branchTarget = e.branchTarget[:n-1]
			after = name + " exiting...\n" + BannerExit
			e.popPending = true
		}

	case "WFI":
		e.unwindLeafRoutines()

	default:
		if !e.reducedInfo && tt == ttEvent &&
			strings.HasPrefix(tokens[idxReducedMarker], reducedInfoMarker) {
			e.reducedInfo = true
			e.opts.Logger.Info("trace switched to reduced information; PUSH/POP/WFI records will be reconstructed from opcodes")
		}
	}

	if e.opts.StackWriter != nil && tokens[idxOpcode] == stackPointerMarker {
		e.writeStackLine(line)
	}

	return prefix, tree, after
}

// functionEntry emits the start banner for a PUSH record and, when the
// address resolves, the entry header, prototype and abbreviated call tree.
func (e *Engine) functionEntry(prefix string, tokens []string) (string, string) {
	prefix += BannerStart
	e.functionsExecuted++

	address := tokens[idxAddress]

	name, ok := e.opts.Symbols.NameAt(address)
	if !ok {
		e.symbolsMissing++
		return prefix, ""
	}

	e.callStack = append(e.callStack, name)
	prefix += name + " entry (" + address + ") \n"

	if fn, found := e.opts.Signatures.Find(name); found {
		prefix += fn.FileName + "\n"
		prefix += fn.Prototype() + "\n"
	}

	return prefix, e.callTree()
}

// callTree renders the abbreviated call tree for the current stack, most
// recent frame last. Empty below two frames.
func (e *Engine) callTree() string {
	depth := len(e.callStack)
	if depth <= 1 {
		return ""
	}

	start := depth - callTreeDepth
	tree := "    "

	if start > 0 {
		tree += "... -> "
	} else {
		start = 0
	}

	return tree + strings.Join(e.callStack[start:], " -> ") + "\n"
}

// unwindLeafRoutines pops the configured non-popping leaf routines off the
// call stack when WFI is reached with them on top. The depth guard keeps a
// WFI during early boot from stripping the reset frames.
func (e *Engine) unwindLeafRoutines() {
	if len(e.callStack) <= 3 {
		return
	}

	for _, leaf := range e.opts.WFILeafRoutines {
		if n := len(e.callStack); n > 0 && e.callStack[n-1] == leaf {
			e.callStack = e.callStack[:n-1]
		}
	}
}

// writeStackLine copies a main-stack-pointer register write to the side
// stream, annotated with the active function when one is known.
func (e *Engine) writeStackLine(line string) {
	if n := len(e.callStack); n > 0 {
		line = strings.TrimRight(line, " \t") + "    ; " + e.callStack[n-1]
	}
	fmt.Fprintln(e.opts.StackWriter, line)
}

// annotateVariableAccess appends a named-variable comment to a 4-byte data
// memory access. Annotating a line that already carries the comment is a
// no-op, keyed off the original token positions.
func (e *Engine) annotateVariableAccess(line string, tokens []string, isWrite bool) string {
	name, ok := e.opts.Variables[tokens[idxAddress]]
	if !ok {
		return line
	}

	arrow := " => "
	if isWrite {
		arrow = " <= "
	}

	suffix := annotationPad + "; " + name + arrow + tokens[idxAddress+1]

	if strings.HasSuffix(line, suffix) {
		return line
	}

	return strings.TrimRight(line, " \t") + suffix
}
