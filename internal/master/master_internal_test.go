package master

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sigcheck/sigcheck/internal/controller"
	"github.com/sigcheck/sigcheck/internal/diagnostics"
	"github.com/sigcheck/sigcheck/internal/rpc"
	"github.com/sigcheck/sigcheck/internal/worker"
)

func TestDecodeReqIDHandlesEveryJSONNumberShape(t *testing.T) {
	id, ok := decodeReqID(3)
	assert.True(t, ok)
	assert.Equal(t, 3, id)

	id, ok = decodeReqID(float64(4))
	assert.True(t, ok)
	assert.Equal(t, 4, id)

	id, ok = decodeReqID(json.Number("5"))
	assert.True(t, ok)
	assert.Equal(t, 5, id)

	_, ok = decodeReqID("not-a-number")
	assert.False(t, ok)

	_, ok = decodeReqID(json.Number("not-a-number"))
	assert.False(t, ok)
}

func TestIsUntitledRecognizesThePrefix(t *testing.T) {
	assert.True(t, isUntitled("untitled:Untitled-1"))
	assert.False(t, isUntitled("file:///a.fx"))
	assert.False(t, isUntitled("unti")) // shorter than the prefix itself
}

func TestSummaryAndFatalOnAFreshMaster(t *testing.T) {
	m := &Master{diagnosticCounts: diagnostics.Summary{Errors: 2, Warnings: 1}}
	s := m.Summary()
	assert.Equal(t, 2, s.Errors)
	assert.Equal(t, 1, s.Warnings)
	assert.Equal(t, 0, s.Workers)
	assert.False(t, m.Fatal())

	m.fatal = true
	assert.True(t, m.Fatal())
}

func newTestMasterForUnitTests(t *testing.T, codeCount int) (*Master, []*worker.Process, *bytes.Buffer) {
	t.Helper()
	code := make([]*worker.Process, codeCount)
	for i := range code {
		code[i] = worker.NewFake(worker.Code, i)
	}
	interaction := worker.NewFake(worker.Interaction, 0)
	signature := worker.NewFake(worker.Signature, 0)

	var clientOut bytes.Buffer
	m := New(rpc.NewReader(strings.NewReader("")), rpc.NewWriter(&clientOut), interaction, signature, code, codeCount, Options{}, zaptest.NewLogger(t))
	return m, code, &clientOut
}

// TestCrashAfterPartialCompletionOnlyRequeuesPendingPaths is the
// regression test for the bug where handleWorkerCrash subtracted a
// crashed worker's entire original assignment from current.Total, even
// for paths that had already reported their typecheck_update — this
// could make Completed >= Total fire early and drop a survivor's later
// updates on the floor.
func TestCrashAfterPartialCompletionOnlyRequeuesPendingPaths(t *testing.T) {
	m, code, clientOut := newTestMasterForUnitTests(t, 2)
	m.current = &controller.Request{
		GUID:        "g1",
		Assignment:  map[int][]string{0: {"a", "b"}, 1: {"c"}},
		Total:       3,
		ClientReqID: 1,
	}

	// worker 0 finishes "a" before it crashes; "b" is still pending.
	m.onTypeCheckUpdate(code[0], "g1", "a")
	require.NotNil(t, m.current)
	assert.Equal(t, 1, m.current.Completed)
	assert.Equal(t, []string{"b"}, m.current.Assignment[0])

	m.handleWorkerCrash(code[0])
	require.NotNil(t, m.current, "worker 1's in-flight path must not be silently dropped")
	assert.Equal(t, 2, m.current.Total, "only the genuinely pending \"b\" should be subtracted")
	assert.Equal(t, 1, m.current.Completed)
	assert.Len(t, m.code, 1)

	// "b" was requeued as a change for a future batch.
	req := m.ctrl.MakeRequest(2)
	require.NotNil(t, req)
	assert.ElementsMatch(t, []string{"b"}, flattenAssignment(req.Assignment))

	// worker 1 (the survivor) finishes its own path; the batch must still
	// complete and reply to the client instead of being stuck forever.
	m.onTypeCheckUpdate(code[1], "g1", "c")
	assert.Nil(t, m.current)

	// The crash itself was reported with a window/showMessage; the
	// typecheck response follows it.
	dec := rpc.NewReader(bytes.NewReader(clientOut.Bytes()))
	var msg rpc.Message
	for {
		var err error
		msg, err = dec.ReadMessage()
		require.NoError(t, err)
		if msg.IsResponse() {
			break
		}
	}
	var result TypecheckResult
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	assert.Equal(t, 2, result.Total, "total covers \"a\" (completed) and \"c\" (completed); \"b\" was requeued separately")
}

func flattenAssignment(assignment map[int][]string) []string {
	var out []string
	for _, paths := range assignment {
		out = append(out, paths...)
	}
	return out
}

func TestHandleWorkerCrashOnInteractionWorkerIsFatal(t *testing.T) {
	m, _, clientOut := newTestMasterForUnitTests(t, 1)
	m.handleWorkerCrash(m.interaction)

	assert.True(t, m.fatal)
	assertClientSawShowMessageContaining(t, clientOut, "interaction worker crashed")
}

func TestHandleWorkerCrashWhenLastCodeWorkerDiesIsFatal(t *testing.T) {
	m, code, clientOut := newTestMasterForUnitTests(t, 1)
	m.handleWorkerCrash(code[0])

	assert.True(t, m.fatal)
	assert.Empty(t, m.code)
	assertClientSawShowMessageContaining(t, clientOut, "all code workers have crashed")
}

func assertClientSawShowMessageContaining(t *testing.T, clientOut *bytes.Buffer, substr string) {
	t.Helper()
	dec := rpc.NewReader(bytes.NewReader(clientOut.Bytes()))
	for {
		msg, err := dec.ReadMessage()
		if err != nil {
			t.Fatalf("client never saw a window/showMessage containing %q", substr)
		}
		if msg.Method != "window/showMessage" {
			continue
		}
		var params ShowMessageParams
		require.NoError(t, json.Unmarshal(msg.Params, &params))
		if strings.Contains(params.Message, substr) {
			return
		}
	}
}

// TestStartTypeCheckReportsProgressOnlyAboveThreshold drives
// startTypeCheck directly to cover spec.md §8's progress-threshold
// scenario: a batch below ReportProgressThreshold never creates a
// work-done progress token, while one at or above it does.
func TestStartTypeCheckReportsProgressOnlyAboveThreshold(t *testing.T) {
	m, _, clientOut := newTestMasterForUnitTests(t, 1)
	m.workDoneProgress = true
	m.opts = Options{ReportProgressThreshold: 2}

	m.ctrl.PushChange("/a.fx")
	m.startTypeCheck(1)
	assert.Empty(t, clientOut.Bytes(), "a below-threshold batch must not create a work-done progress token")

	m.ctrl.PushChange("/b.fx")
	m.ctrl.PushChange("/c.fx")
	m.startTypeCheck(2)
	assert.Contains(t, clientOut.String(), "window/workDoneProgress/create")
	assert.Contains(t, clientOut.String(), "$/progress")
}

// TestRunRequeuesOrphanedWorkOnCodeWorkerCrash drives the full Run()
// event loop over fake client/worker streams: a code worker crashes
// mid-batch and the surviving worker's completion still closes out the
// batch with a response to the client.
func TestRunRequeuesOrphanedWorkOnCodeWorkerCrash(t *testing.T) {
	pathA, pathB := findPathsForDistinctWorkers(t, 2)

	clientInR, clientInW := io.Pipe()
	clientOutR, clientOutW := io.Pipe()
	defer clientInW.Close()
	defer clientOutW.Close()

	code0 := worker.NewFake(worker.Code, 0)
	code1 := worker.NewFake(worker.Code, 1)
	interaction := worker.NewFake(worker.Interaction, 0)
	signature := worker.NewFake(worker.Signature, 0)
	defer close(interaction.Inbound)
	defer close(signature.Inbound)
	defer close(code1.Inbound)

	m := New(rpc.NewReader(clientInR), rpc.NewWriter(clientOutW), interaction, signature,
		[]*worker.Process{code0, code1}, 2, Options{ReportProgressThreshold: 1000}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	clientWriter := rpc.NewWriter(clientInW)
	clientReader := rpc.NewReader(clientOutR)

	requireSend(t, clientWriter, rpc.NewNotification("textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{URI: pathA},
	}))
	requireSend(t, clientWriter, rpc.NewNotification("textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{URI: pathB},
	}))
	requireSend(t, clientWriter, rpc.NewRequest(1, "$/steep/typecheck", TypecheckParams{}))

	startForWorker0 := readTypecheckStart(t, code0)
	guid := startForWorker0.GUID
	require.ElementsMatch(t, []string{pathA}, startForWorker0.Paths)
	startForWorker1 := readTypecheckStart(t, code1)
	require.ElementsMatch(t, []string{pathB}, startForWorker1.Paths)

	// worker 0 crashes before finishing pathA.
	close(code0.Inbound)

	// worker 1 finishes its own path.
	code1.Inbound <- rpc.NewNotification("$/steep/typecheck_update", TypecheckUpdateParams{GUID: guid, Path: pathB})

	var result TypecheckResult
	for {
		msg, err := readWithTimeout(t, clientReader)
		require.NoError(t, err)
		if msg.Method == "" && msg.ID != nil {
			require.NoError(t, json.Unmarshal(msg.Result, &result))
			break
		}
	}
	assert.Equal(t, guid, result.GUID)
	assert.Equal(t, 1, result.Total, "only pathB should count toward the final total once pathA was requeued")

	cancel()
	<-runDone
}

func requireSend(t *testing.T, w *rpc.Writer, msg rpc.Message) {
	t.Helper()
	require.NoError(t, w.WriteMessage(msg))
}

func readTypecheckStart(t *testing.T, w *worker.Process) TypecheckStartParams {
	t.Helper()
	for {
		select {
		case msg := <-w.Sent():
			// didChange notifications are forwarded to every code worker
			// ahead of the batch start.
			if msg.Method == "textDocument/didChange" {
				continue
			}
			require.Equal(t, "$/steep/typecheck_start", msg.Method)
			var params TypecheckStartParams
			require.NoError(t, json.Unmarshal(msg.Params, &params))
			return params
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for typecheck_start")
			return TypecheckStartParams{}
		}
	}
}

func readWithTimeout(t *testing.T, r *rpc.Reader) (rpc.Message, error) {
	t.Helper()
	type result struct {
		msg rpc.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := r.ReadMessage()
		ch <- result{msg, err}
	}()
	select {
	case res := <-ch:
		return res.msg, res.err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out reading from client stream")
		return rpc.Message{}, nil
	}
}

// findPathsForDistinctWorkers brute-forces two path strings that
// Controller's stable FNV-1a hash assigns to worker indices 0 and 1
// respectively, so the crash-requeue test can deterministically target
// one worker without reaching into Controller's unexported state.
func findPathsForDistinctWorkers(t *testing.T, count int) (string, string) {
	t.Helper()
	found := make(map[int]string)
	for i := 0; len(found) < count && i < 10000; i++ {
		p := "/fixture/file" + strconv.Itoa(i) + ".fx"
		h := fnv.New32a()
		_, _ = h.Write([]byte(p))
		idx := int(h.Sum32() % uint32(count))
		if _, ok := found[idx]; !ok {
			found[idx] = p
		}
	}
	require.Len(t, found, count)
	return found[0], found[1]
}
