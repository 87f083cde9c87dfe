// Package master implements the LSP server endpoint seen by the client:
// it demultiplexes incoming messages across interaction/signature/code
// worker processes, aggregates their responses, publishes diagnostics,
// and emits work-done progress for batch checks. It never does type
// work itself — that happens inside workers.
package master

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/sigcheck/sigcheck/internal/controller"
	"github.com/sigcheck/sigcheck/internal/diagnostics"
	"github.com/sigcheck/sigcheck/internal/progress"
	"github.com/sigcheck/sigcheck/internal/rpc"
	"github.com/sigcheck/sigcheck/internal/worker"
)

const untitledPrefix = "untitled:"

// Options configures a Master at construction.
type Options struct {
	ReportProgressThreshold int
}

// Master owns the client reader/writer pair, the worker processes, the
// controller, and per-GUID progress state. Its methods other than Run,
// NotifyChanged and the constructor run exclusively on the single
// goroutine executing Run's event loop — this is the "controller
// touched only from the event loop" invariant.
type Master struct {
	logger *zap.Logger
	opts   Options

	clientReader *rpc.Reader
	clientWriter *rpc.Writer

	interaction *worker.Process
	signature   *worker.Process
	code        []*worker.Process

	ctrl *controller.Controller

	workDoneProgress bool
	fatal            bool
	shuttingDown     bool
	exiting          bool

	nextClientReqID int
	interactionReqs map[int]interface{} // interaction request id -> client request id
	symbolReqs      map[int]*symbolAggregate

	progressByGUID map[string]*progress.State
	current        *controller.Request

	// externalChanges carries paths reported by out-of-band sources (the
	// signature-directory file watcher) into the event loop, preserving
	// the controller-touched-only-from-the-event-loop invariant.
	externalChanges chan string

	// diagnosticCounts accumulates across the session for the CLI driver's
	// exit-code decision; updated as publishDiagnostics notifications are
	// forwarded.
	diagnosticCounts diagnostics.Summary
}

type symbolAggregate struct {
	clientReqID interface{}
	remaining   int
	results     []SymbolInformation
}

// New constructs a Master around the given client stream and worker set.
func New(clientIn *rpc.Reader, clientOut *rpc.Writer, interaction, signature *worker.Process, code []*worker.Process, workerCount int, opts Options, logger *zap.Logger) *Master {
	return &Master{
		logger:          logger,
		opts:            opts,
		clientReader:    clientIn,
		clientWriter:    clientOut,
		interaction:     interaction,
		signature:       signature,
		code:            code,
		ctrl:            controller.New(workerCount),
		interactionReqs: map[int]interface{}{},
		symbolReqs:      map[int]*symbolAggregate{},
		progressByGUID:  map[string]*progress.State{},
		externalChanges: make(chan string, 64),
	}
}

// NotifyChanged marks path dirty from outside the event loop (the
// signature directory watcher). Safe to call from any goroutine.
func (m *Master) NotifyChanged(path string) {
	m.externalChanges <- path
}

// Summary returns the session's accumulated diagnostic counts, for the
// CLI driver's exit-code decision.
func (m *Master) Summary() diagnostics.Summary {
	s := m.diagnosticCounts
	s.Workers = len(m.code)
	return s
}

// Fatal reports whether a worker has emitted an unrecoverable
// window/showMessage ERROR.
func (m *Master) Fatal() bool { return m.fatal }

// Run drives the single-threaded event loop: it fans in the client's
// inbound stream and every worker's Inbound channel, and dispatches each
// message to its handler in arrival order. Run returns when the client
// stream closes or ctx is cancelled.
func (m *Master) Run(ctx context.Context) error {
	type source struct {
		msg rpc.Message
		err error
	}
	clientCh := make(chan source)
	go func() {
		for {
			msg, err := m.clientReader.ReadMessage()
			if err != nil && rpc.IsMalformed(err) {
				m.logger.Warn("malformed message from client, ignoring", zap.Error(err))
				continue
			}
			clientCh <- source{msg, err}
			if err != nil {
				return
			}
		}
	}()

	type workerMsg struct {
		w       *worker.Process
		msg     rpc.Message
		crashed bool
	}
	fanIn := make(chan workerMsg)
	for _, w := range m.allWorkers() {
		w := w
		go func() {
			for msg := range w.Inbound {
				fanIn <- workerMsg{w: w, msg: msg}
			}
			fanIn <- workerMsg{w: w, crashed: true}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-clientCh:
			if s.err != nil {
				return s.err
			}
			m.handleClientMessage(s.msg)
			if m.exiting {
				return nil
			}
		case wm := <-fanIn:
			if wm.crashed {
				m.handleWorkerCrash(wm.w)
				continue
			}
			m.handleWorkerMessage(wm.w, wm.msg)
		case path := <-m.externalChanges:
			m.ctrl.PushChange(path)
		}
	}
}

// handleWorkerCrash implements spec.md §7's worker-crash recovery: a dead
// code worker's assignment (from the in-flight request, if any) is
// requeued onto the surviving code workers by re-pushing its paths as
// changes; if w was the last code worker, the session cannot continue.
func (m *Master) handleWorkerCrash(w *worker.Process) {
	if m.shuttingDown {
		return
	}
	m.logger.Error("worker closed its channel unexpectedly", zap.String("worker", string(w.Kind)), zap.Int("index", w.Index))

	if w.Kind != worker.Code {
		m.fatal = true
		m.sendToClient(rpc.NewNotification("window/showMessage", ShowMessageParams{
			Type:    showMessageError,
			Message: fmt.Sprintf("%s worker crashed", w.Kind),
		}))
		return
	}

	var orphaned []string
	if m.current != nil {
		orphaned = m.current.Assignment[w.Index]
	}

	surviving := make([]*worker.Process, 0, len(m.code))
	for _, c := range m.code {
		if c != w {
			surviving = append(surviving, c)
		}
	}
	m.code = surviving

	for _, path := range orphaned {
		m.ctrl.PushChange(path)
	}
	if len(orphaned) > 0 && m.current != nil {
		m.current.Total -= len(orphaned)
		if m.current.Completed >= m.current.Total {
			guid := m.current.GUID
			if state := m.progressByGUID[guid]; state != nil {
				if end := state.End(); end != nil {
					m.sendToClient(rpc.NewNotification("$/progress", ProgressParams{Token: guid, Value: end}))
				}
			}
			delete(m.progressByGUID, guid)
			m.sendToClient(rpc.NewResponse(m.current.ClientReqID, TypecheckResult{GUID: guid, Total: m.current.Total}))
			m.current = nil
		}
	}

	if len(m.code) == 0 {
		m.fatal = true
		m.sendToClient(rpc.NewNotification("window/showMessage", ShowMessageParams{
			Type:    showMessageError,
			Message: "all code workers have crashed; shutting down",
		}))
		return
	}

	m.sendToClient(rpc.NewNotification("window/showMessage", ShowMessageParams{
		Type:    showMessageError,
		Message: fmt.Sprintf("code worker %d crashed; its assignment will be requeued", w.Index),
	}))
}


// removePath drops the first occurrence of path from assignment, preserving
// order. Absent paths (e.g. a duplicate update) are a no-op.
func removePath(assignment []string, path string) []string {
	for i, p := range assignment {
		if p == path {
			return append(assignment[:i:i], assignment[i+1:]...)
		}
	}
	return assignment
}

func (m *Master) allWorkers() []*worker.Process {
	workers := []*worker.Process{m.interaction, m.signature}
	return append(workers, m.code...)
}

func (m *Master) sendToClient(msg rpc.Message) {
	if err := m.clientWriter.WriteMessage(msg); err != nil {
		m.logger.Error("write to client failed", zap.Error(err))
	}
}

func isUntitled(uri string) bool {
	return len(uri) >= len(untitledPrefix) && uri[:len(untitledPrefix)] == untitledPrefix
}

// handleClientMessage implements the routing table of spec.md §4.4.
func (m *Master) handleClientMessage(msg rpc.Message) {
	switch msg.Method {
	case "initialize":
		m.handleInitialize(msg)
	case "textDocument/didOpen":
		m.handleDidOpen(msg)
	case "textDocument/didClose":
		m.handleDidClose(msg)
	case "textDocument/didChange":
		m.handleDidChange(msg)
	case "textDocument/didSave":
		// no-op at master
	case "textDocument/hover", "textDocument/completion":
		m.routeToInteraction(msg, false)
	case "textDocument/definition", "textDocument/implementation":
		m.routeToInteraction(msg, true)
	case "workspace/symbol":
		m.handleWorkspaceSymbol(msg)
	case "$/steep/typecheck":
		m.handleTypecheckRequest(msg)
	case "shutdown":
		m.handleShutdown(msg)
	case "exit":
		m.exiting = true
	case "":
		// a response to a request we originated (e.g. none currently); ignore.
	default:
		m.logger.Warn("unrecognized method from client", zap.String("method", msg.Method))
	}
}

func (m *Master) handleInitialize(msg rpc.Message) {
	var params InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		m.logger.Warn("malformed initialize params", zap.Error(err))
	}
	if params.Capabilities.Window != nil {
		m.workDoneProgress = params.Capabilities.Window.WorkDoneProgress
	}

	for _, w := range m.allWorkers() {
		w.Send(rpc.NewNotification("initialize", params))
	}

	result := InitializeResult{Capabilities: ServerCapabilities{
		TextDocumentSync:   1,
		HoverProvider:      true,
		DefinitionProvider: true,
		CompletionProvider: &CompletionOptions{ResolveProvider: false},
	}}
	m.sendToClient(rpc.NewResponse(msg.ID, result))
}

func (m *Master) handleDidOpen(msg rpc.Message) {
	var params DidOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		m.logger.Warn("malformed didOpen params", zap.Error(err))
		return
	}
	if isUntitled(params.TextDocument.URI) {
		return
	}
	m.ctrl.UpdatePriority([]string{params.TextDocument.URI}, nil)

	params.TextDocument.Text = norm.NFC.String(params.TextDocument.Text)
	m.broadcastToCode(rpc.Message{Method: msg.Method, Params: mustMarshalParams(params, m.logger)})
}

func (m *Master) handleDidClose(msg rpc.Message) {
	var params DidCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		m.logger.Warn("malformed didClose params", zap.Error(err))
		return
	}
	m.ctrl.UpdatePriority(nil, []string{params.TextDocument.URI})
	m.broadcastToCode(msg)
}

func (m *Master) handleDidChange(msg rpc.Message) {
	var params DidChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		m.logger.Warn("malformed didChange params", zap.Error(err))
		return
	}
	if isUntitled(params.TextDocument.URI) {
		return
	}
	m.ctrl.PushChange(params.TextDocument.URI)

	for i, change := range params.ContentChanges {
		params.ContentChanges[i].Text = norm.NFC.String(change.Text)
	}
	m.broadcastToCode(rpc.Message{Method: msg.Method, Params: mustMarshalParams(params, m.logger)})
}

// mustMarshalParams re-encodes params for forwarding; a marshal failure
// here would mean a programmer error in one of the param structs above,
// so the message is logged and dropped rather than forwarding garbage.
func mustMarshalParams(params interface{}, logger *zap.Logger) json.RawMessage {
	data, err := json.Marshal(params)
	if err != nil {
		logger.Error("re-marshaling forwarded params failed", zap.Error(err))
		return nil
	}
	return data
}

func (m *Master) broadcastToCode(msg rpc.Message) {
	for _, w := range m.code {
		w.Send(rpc.NewNotification(msg.Method, msg.Params))
	}
}

// routeToInteraction forwards a hover/completion/definition/implementation
// request to the interaction worker, short-circuiting untitled URIs per
// spec.md §4.4. emptyArray selects the definition/implementation reply
// shape ([]) over hover/completion's (null).
func (m *Master) routeToInteraction(msg rpc.Message, emptyArray bool) {
	var doc struct {
		TextDocument TextDocumentIdentifier `json:"textDocument"`
	}
	if err := json.Unmarshal(msg.Params, &doc); err != nil {
		m.logger.Warn("malformed interaction params", zap.Error(err))
		return
	}
	if isUntitled(doc.TextDocument.URI) {
		var result interface{} = json.RawMessage("null")
		if emptyArray {
			result = []Location{}
		}
		m.sendToClient(rpc.NewResponse(msg.ID, result))
		return
	}

	m.nextClientReqID++
	reqID := m.nextClientReqID
	m.interactionReqs[reqID] = msg.ID
	m.interaction.Send(rpc.NewRequest(reqID, msg.Method, msg.Params))
}

func (m *Master) handleWorkspaceSymbol(msg rpc.Message) {
	if len(m.code) == 0 {
		m.sendToClient(rpc.NewResponse(msg.ID, []SymbolInformation{}))
		return
	}
	m.nextClientReqID++
	reqID := m.nextClientReqID
	agg := &symbolAggregate{clientReqID: msg.ID, remaining: len(m.code)}
	m.symbolReqs[reqID] = agg
	for _, w := range m.code {
		w.Send(rpc.NewRequest(reqID, msg.Method, msg.Params))
	}
}

func (m *Master) handleTypecheckRequest(msg rpc.Message) {
	var params TypecheckParams
	_ = json.Unmarshal(msg.Params, &params)
	m.startTypeCheck(msg.ID)
}

// startTypeCheck implements spec.md §4.4's start_type_check procedure.
// A new $/steep/typecheck before the previous one completes cancels by
// replacing current: the stale request's GUID will no longer match
// incoming $/steep/typecheck_update notifications and is silently
// dropped (see onTypeCheckUpdate).
func (m *Master) startTypeCheck(clientReqID interface{}) {
	req := m.ctrl.MakeRequest(clientReqID)
	if req == nil {
		m.sendToClient(rpc.NewResponse(clientReqID, TypecheckResult{Total: 0}))
		return
	}

	active := m.workDoneProgress && req.Total >= m.opts.ReportProgressThreshold
	state, begin := progress.Begin(req.GUID, req.Total, active)
	m.progressByGUID[req.GUID] = state
	if begin != nil {
		m.sendToClient(rpc.NewNotification("window/workDoneProgress/create", WorkDoneProgressCreateParams{Token: req.GUID}))
		m.sendToClient(rpc.NewNotification("$/progress", ProgressParams{Token: req.GUID, Value: begin}))
	}

	for idx, paths := range req.Assignment {
		if idx < 0 || idx >= len(m.code) {
			continue
		}
		m.code[idx].Send(rpc.NewNotification("$/steep/typecheck_start", TypecheckStartParams{GUID: req.GUID, Paths: paths}))
	}

	m.current = req
}

// onTypeCheckUpdate implements spec.md §4.4's progress-accounting procedure.
// It decrements w's remaining assignment for guid so a later worker crash
// only requeues paths that are genuinely still in flight.
func (m *Master) onTypeCheckUpdate(w *worker.Process, guid, path string) {
	if m.current == nil || guid != m.current.GUID {
		return
	}
	m.current.Assignment[w.Index] = removePath(m.current.Assignment[w.Index], path)
	state := m.progressByGUID[guid]
	m.current.Completed++

	if state != nil {
		if report := state.Report(1); report != nil {
			m.sendToClient(rpc.NewNotification("$/progress", ProgressParams{Token: guid, Value: report}))
		}
	}

	if m.current.Completed >= m.current.Total {
		if state != nil {
			if end := state.End(); end != nil {
				m.sendToClient(rpc.NewNotification("$/progress", ProgressParams{Token: guid, Value: end}))
			}
		}
		delete(m.progressByGUID, guid)
		m.sendToClient(rpc.NewResponse(m.current.ClientReqID, TypecheckResult{GUID: guid, Total: m.current.Total}))
		m.current = nil
	}
}

func (m *Master) handleShutdown(msg rpc.Message) {
	m.shuttingDown = true
	var g errgroup.Group
	for _, w := range m.allWorkers() {
		w := w
		w.Send(rpc.NewNotification("shutdown", nil))
		g.Go(w.Shutdown)
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("worker shutdown reported an error", zap.Error(err))
	}
	m.sendToClient(rpc.NewResponse(msg.ID, nil))
}

// handleWorkerMessage dispatches a message received from any worker:
// responses to interaction/workspace-symbol requests, and notifications
// (publishDiagnostics, typecheck_update, showMessage).
func (m *Master) handleWorkerMessage(w *worker.Process, msg rpc.Message) {
	switch {
	case msg.Method == "textDocument/publishDiagnostics":
		m.handlePublishDiagnostics(msg)
	case msg.Method == "$/steep/typecheck_update":
		var params TypecheckUpdateParams
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			m.onTypeCheckUpdate(w, params.GUID, params.Path)
		}
	case msg.Method == "window/showMessage":
		m.handleShowMessage(w, msg)
	case msg.IsResponse():
		m.handleWorkerResponse(w, msg)
	default:
		m.logger.Debug("unhandled worker message", zap.String("method", msg.Method), zap.String("worker", string(w.Kind)))
	}
}

func (m *Master) handlePublishDiagnostics(msg rpc.Message) {
	var params PublishDiagnosticsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		m.logger.Warn("malformed publishDiagnostics params", zap.Error(err))
		return
	}
	for _, d := range params.Diagnostics {
		if d.Severity == diagnostics.SeverityError {
			m.diagnosticCounts.Errors++
		} else if d.Severity == diagnostics.SeverityWarning {
			m.diagnosticCounts.Warnings++
		}
	}
	m.sendToClient(rpc.NewNotification("textDocument/publishDiagnostics", params))
}

func (m *Master) handleShowMessage(w *worker.Process, msg rpc.Message) {
	var params ShowMessageParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		m.logger.Warn("malformed showMessage params", zap.Error(err))
		return
	}
	if params.Type == showMessageError {
		m.fatal = true
		m.logger.Error("worker reported an unrecoverable error", zap.String("worker", string(w.Kind)), zap.String("message", params.Message))
	}
	m.sendToClient(rpc.NewNotification("window/showMessage", params))
}

func (m *Master) handleWorkerResponse(w *worker.Process, msg rpc.Message) {
	reqID, ok := decodeReqID(msg.ID)
	if !ok {
		return
	}

	if clientReqID, ok := m.interactionReqs[reqID]; ok {
		delete(m.interactionReqs, reqID)
		m.sendToClient(rpc.Message{JSONRPC: "2.0", ID: clientReqID, Result: msg.Result, Error: msg.Error})
		return
	}

	if agg, ok := m.symbolReqs[reqID]; ok {
		var partial []SymbolInformation
		_ = json.Unmarshal(msg.Result, &partial)
		agg.results = append(agg.results, partial...)
		agg.remaining--
		if agg.remaining <= 0 {
			m.sendToClient(rpc.NewResponse(agg.clientReqID, agg.results))
			delete(m.symbolReqs, reqID)
		}
		return
	}

	m.logger.Debug("response to unknown request id", zap.Int("id", reqID), zap.String("worker", string(w.Kind)))
}

func decodeReqID(id interface{}) (int, bool) {
	switch v := id.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

