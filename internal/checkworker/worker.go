package checkworker

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sigcheck/sigcheck/internal/diagnostics"
	"github.com/sigcheck/sigcheck/internal/rpc"
)

// Kind identifies which of the three worker roles this process plays.
type Kind string

const (
	Interaction Kind = "interaction"
	Signature   Kind = "signature"
	Code        Kind = "code"
)

// typecheckStartParams/typecheckUpdateParams mirror internal/master's
// wire shapes; duplicated here rather than imported to keep a worker
// process's dependency on the master package nonexistent (a worker only
// ever talks JSON-RPC to its parent, never the Go package).
type typecheckStartParams struct {
	GUID  string   `json:"guid"`
	Paths []string `json:"paths"`
}

type typecheckUpdateParams struct {
	GUID string `json:"guid"`
	Path string `json:"path"`
}

type publishDiagnosticsParams struct {
	URI         string                   `json:"uri"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
}

type textDocumentIdentifierParams struct {
	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument"`
}

// Worker is the runtime for one worker process: it reads JSON-RPC
// messages from in and writes responses/notifications to out, dispatched
// according to its Kind.
type Worker struct {
	kind   Kind
	index  int
	env    *Environment
	logger *zap.Logger

	reader *rpc.Reader
	writer *rpc.Writer
	mu     sync.Mutex // guards writes; the reader runs on this same goroutine, so no read lock needed
}

// New constructs a Worker of the given kind over in/out.
func New(kind Kind, index int, env *Environment, in io.Reader, out io.Writer, logger *zap.Logger) *Worker {
	return &Worker{
		kind:   kind,
		index:  index,
		env:    env,
		logger: logger,
		reader: rpc.NewReader(in),
		writer: rpc.NewWriter(out),
	}
}

// Run processes messages until the stream closes.
func (w *Worker) Run() error {
	for {
		msg, err := w.reader.ReadMessage()
		if err != nil {
			if rpc.IsMalformed(err) {
				w.logger.Warn("malformed message from parent, ignoring", zap.Error(err))
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
		w.dispatch(msg)
	}
}

func (w *Worker) send(msg rpc.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.WriteMessage(msg); err != nil {
		w.logger.Error("write failed", zap.Error(err))
	}
}

func (w *Worker) dispatch(msg rpc.Message) {
	switch msg.Method {
	case "initialize":
		// Workers ack nothing back (they were sent a notification); they
		// just note the session has begun.
	case "$/steep/typecheck_start":
		w.handleTypecheckStart(msg)
	case "textDocument/hover":
		w.handleInteraction(msg, hoverResult{})
	case "textDocument/completion":
		w.handleInteraction(msg, completionResult{})
	case "textDocument/definition", "textDocument/implementation":
		w.handleInteraction(msg, []locationResult{})
	case "workspace/symbol":
		w.send(rpc.NewResponse(msg.ID, []symbolResult{}))
	case "shutdown":
		w.send(rpc.NewResponse(msg.ID, nil))
	case "":
		// response to a request this worker itself issued; none currently.
	default:
		w.logger.Debug("unhandled method", zap.String("method", msg.Method))
	}
}

// handleTypecheckStart runs CheckFile over every path assigned to this
// worker, publishing diagnostics and a typecheck_update per path.
func (w *Worker) handleTypecheckStart(msg rpc.Message) {
	var params typecheckStartParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		w.logger.Warn("malformed typecheck_start params", zap.Error(err))
		return
	}
	for _, uri := range params.Paths {
		path := uriToPath(uri)
		facts, err := LoadFacts(path)
		var errs []*diagnostics.DiagnosticError
		if err != nil {
			errs = []*diagnostics.DiagnosticError{{File: path, Code: diagnostics.CodeTypeMismatch, Message: err.Error()}}
		} else {
			errs = CheckFile(path, facts, w.env)
		}

		w.send(rpc.NewNotification("textDocument/publishDiagnostics", publishDiagnosticsParams{
			URI:         uri,
			Diagnostics: diagnostics.ForFile(errs, path),
		}))
		w.send(rpc.NewNotification("$/steep/typecheck_update", typecheckUpdateParams{GUID: params.GUID, Path: uri}))
	}
}

// handleInteraction replies with an empty-but-well-typed result: a real
// hover/completion/definition implementation needs the source-language
// front end the module's non-goals explicitly exclude (parsing is
// assumed to happen elsewhere, producing the fact sheets CheckFile
// consumes); the interaction worker still needs to be a legitimate LSP
// participant that answers every request it is routed.
func (w *Worker) handleInteraction(msg rpc.Message, empty interface{}) {
	var doc textDocumentIdentifierParams
	_ = json.Unmarshal(msg.Params, &doc)
	w.send(rpc.NewResponse(msg.ID, empty))
}

func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

type hoverResult struct {
	Contents string `json:"contents,omitempty"`
}

type completionResult struct {
	Items []string `json:"items,omitempty"`
}

type locationResult struct {
	URI string `json:"uri"`
}

type symbolResult struct {
	Name string `json:"name"`
}
