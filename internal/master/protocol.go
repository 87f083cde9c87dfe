package master

import "github.com/sigcheck/sigcheck/internal/diagnostics"

// InitializeParams is the subset of the LSP `initialize` request the
// master inspects: the workDoneProgress capability.
type InitializeParams struct {
	ProcessID    *int               `json:"processId,omitempty"`
	RootURI      *string            `json:"rootUri,omitempty"`
	Capabilities ClientCapabilities `json:"capabilities"`
}

type ClientCapabilities struct {
	Window *WindowClientCapabilities `json:"window,omitempty"`
}

type WindowClientCapabilities struct {
	WorkDoneProgress bool `json:"workDoneProgress,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
}

type ServerCapabilities struct {
	TextDocumentSync   int                `json:"textDocumentSync"`
	HoverProvider      bool               `json:"hoverProvider"`
	DefinitionProvider bool               `json:"definitionProvider"`
	CompletionProvider *CompletionOptions `json:"completionProvider,omitempty"`
}

type CompletionOptions struct {
	ResolveProvider bool `json:"resolveProvider"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier   `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type HoverParams struct {
	TextDocument TextDocumentIdentifier  `json:"textDocument"`
	Position     diagnostics.Position    `json:"position"`
}

type DefinitionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     diagnostics.Position   `json:"position"`
}

type CompletionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     diagnostics.Position   `json:"position"`
}

type PublishDiagnosticsParams struct {
	URI         string                     `json:"uri"`
	Diagnostics []diagnostics.Diagnostic   `json:"diagnostics"`
}

type ShowMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

const showMessageError = 1

type Location struct {
	URI   string            `json:"uri"`
	Range diagnostics.Range `json:"range"`
}

type SymbolInformation struct {
	Name     string   `json:"name"`
	Kind     int      `json:"kind"`
	Location Location `json:"location"`
}

// WorkDoneProgressCreateParams is the params of window/workDoneProgress/create.
type WorkDoneProgressCreateParams struct {
	Token string `json:"token"`
}

// ProgressParams is the params of the generic $/progress notification.
type ProgressParams struct {
	Token string      `json:"token"`
	Value interface{} `json:"value"`
}

// TypecheckStartParams is master→worker $/steep/typecheck_start.
type TypecheckStartParams struct {
	GUID  string   `json:"guid"`
	Paths []string `json:"paths"`
}

// TypecheckUpdateParams is worker→master $/steep/typecheck_update.
type TypecheckUpdateParams struct {
	GUID string `json:"guid"`
	Path string `json:"path"`
}

// TypecheckParams is client→master $/steep/typecheck.
type TypecheckParams struct {
	GUID  string   `json:"guid,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

// TypecheckResult is the response to $/steep/typecheck.
type TypecheckResult struct {
	GUID  string `json:"guid"`
	Total int    `json:"total"`
}
