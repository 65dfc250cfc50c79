package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

const pageURL = "https://example.com/policy.html"

func TestDocumentProcessor_SkipsUnchangedContent(t *testing.T) {
	source := createTestFileSource(t, "policy", pageURL)
	env := newTestEnv(t, source)
	env.fetcher.SetPayload(pageURL, "text/html", []byte("<p>v1</p>"))

	ctx := context.Background()
	res, err := env.documents.RunCycle(ctx, source, newTestErrorTracker())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Processed != 1 || len(res.Payloads) != 1 {
		t.Fatalf("expected 1 processed with 1 payload, got %d and %d", res.Summary.Processed, len(res.Payloads))
	}

	first, err := env.versionTracker.GetVersion(ctx, source.ID)
	if err != nil || first == nil {
		t.Fatalf("expected a stored version, got %v %v", first, err)
	}
	if first.VersionHash != domain.ComputeContentHash([]byte("<p>v1</p>")) {
		t.Errorf("unexpected version hash %s", first.VersionHash)
	}

	writes := env.index.Writes()
	res, err = env.documents.RunCycle(ctx, source, newTestErrorTracker())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Skipped != 1 || res.Summary.Processed != 0 {
		t.Errorf("expected 1 skipped and 0 processed, got %d and %d", res.Summary.Skipped, res.Summary.Processed)
	}
	if res.Summary.Cleanup != nil {
		t.Error("expected no cleanup for unchanged content")
	}
	if env.index.Writes() != writes {
		t.Error("expected no index writes for unchanged content")
	}
	if got := env.extractor.Calls(); got != 1 {
		t.Errorf("expected 1 extraction, got %d", got)
	}

	second, err := env.versionTracker.GetVersion(ctx, source.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.VersionHash != first.VersionHash {
		t.Errorf("expected hash %s to be kept, got %s", first.VersionHash, second.VersionHash)
	}
	if second.FetchStatus != domain.FetchStatusSuccess {
		t.Errorf("expected fetch status success, got %s", second.FetchStatus)
	}
	// an unchanged fetch is still stamped
	if second.LastFetch.Equal(first.LastFetch) {
		t.Error("expected last fetch to move")
	}
}

func TestDocumentProcessor_NewVersionReplacesOld(t *testing.T) {
	source := createTestFileSource(t, "policy", pageURL)
	env := newTestEnv(t, source)

	ctx := context.Background()
	env.fetcher.SetPayload(pageURL, "text/html", []byte("<p>v1</p>"))
	if _, err := env.documents.RunCycle(ctx, source, newTestErrorTracker()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env.fetcher.SetPayload(pageURL, "text/html", []byte("<p>v2</p>"))
	res, err := env.documents.RunCycle(ctx, source, newTestErrorTracker())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Processed != 1 {
		t.Errorf("expected 1 processed, got %d", res.Summary.Processed)
	}
	cleanup := res.Summary.Cleanup
	if cleanup == nil {
		t.Fatal("expected a cleanup")
	}
	if cleanup.Marked != 1 || cleanup.Deleted != 1 {
		t.Errorf("expected 1 marked and 1 deleted, got %d and %d", cleanup.Marked, cleanup.Deleted)
	}
	// single documents clean up source-wide
	if cleanup.Scope.ItemKeys != nil {
		t.Errorf("expected no item key scope, got %v", cleanup.Scope.ItemKeys)
	}

	docs := env.index.Documents(testIndex)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Content != "<p>v2</p>" || docs[0].Stale {
		t.Errorf("expected current v2 document, got %q stale=%v", docs[0].Content, docs[0].Stale)
	}
	if docs[0].ContentHash != domain.ComputeContentHash([]byte("<p>v2</p>")) {
		t.Errorf("unexpected content hash %s", docs[0].ContentHash)
	}
}

func TestDocumentProcessor_DocumentCarriesItemKey(t *testing.T) {
	source := createTestFileSource(t, "policy", pageURL)
	env := newTestEnv(t, source)
	env.fetcher.SetPayload(pageURL, "text/html", []byte("<p>v1</p>"))

	if _, err := env.documents.RunCycle(context.Background(), source, newTestErrorTracker()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	docs := env.index.Documents(testIndex)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	key := domain.ComputeURLHash(pageURL)
	if docs[0].ItemKey != key {
		t.Errorf("expected item key %s, got %q", key, docs[0].ItemKey)
	}
	if want := domain.DocumentID(source.ID, key, docs[0].ContentHash); docs[0].ID != want {
		t.Errorf("expected id %s, got %s", want, docs[0].ID)
	}
}

func TestDocumentProcessor_MissingDocumentIsCritical(t *testing.T) {
	source := createTestFileSource(t, "policy", pageURL)
	env := newTestEnv(t, source)
	env.fetcher.SetError(pageURL, fmt.Errorf("status 404: %w", domain.ErrNotFound))

	tracker := newTestErrorTracker()
	res, err := env.documents.RunCycle(context.Background(), source, tracker)
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.Summary.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", res.Summary.Failed)
	}
	if !tracker.HasCriticalFor(source.ID) {
		t.Error("expected a critical error")
	}
	if got := env.fetcher.Calls(pageURL); got != 1 {
		t.Errorf("expected fatal errors not to be retried, got %d fetches", got)
	}

	version, err := env.versionTracker.GetVersion(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version.FetchStatus != domain.FetchStatusFailed || version.VersionHash != "" {
		t.Errorf("expected failed fetch without a hash, got %s %q", version.FetchStatus, version.VersionHash)
	}
}

func TestDocumentProcessor_ExtractFailureKeepsVersion(t *testing.T) {
	source := createTestFileSource(t, "policy", pageURL)
	env := newTestEnv(t, source)
	env.fetcher.SetPayload(pageURL, "text/html", []byte("<p>v1</p>"))
	env.extractor.ExtractFn = func(domain.ExtractRequest) (*domain.ExtractedContent, error) {
		return nil, fmt.Errorf("parse: %w", domain.ErrUnsupportedContent)
	}

	ctx := context.Background()
	tracker := newTestErrorTracker()
	if _, err := env.documents.RunCycle(ctx, source, tracker); err == nil {
		t.Fatal("expected an error")
	}
	if tracker.HasCriticalFor(source.ID) {
		t.Error("expected extraction failures not to be critical")
	}
	if got := len(env.index.Documents(testIndex)); got != 0 {
		t.Errorf("expected no documents, got %d", got)
	}

	// the version was not advanced, so the next cycle tries again
	env.extractor.ExtractFn = nil
	res, err := env.documents.RunCycle(ctx, source, newTestErrorTracker())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Processed != 1 {
		t.Errorf("expected 1 processed, got %d", res.Summary.Processed)
	}
	if got := len(env.index.Documents(testIndex)); got != 1 {
		t.Errorf("expected 1 document, got %d", got)
	}
}

func TestDocumentProcessor_IndexFailureIsReported(t *testing.T) {
	source := createTestFileSource(t, "policy", pageURL)
	env := newTestEnv(t, source)
	env.fetcher.SetPayload(pageURL, "text/html", []byte("<p>v1</p>"))
	env.index.UpsertFn = func(string, *domain.IndexDocument) (string, error) {
		return "", errors.New("mapping conflict")
	}

	tracker := newTestErrorTracker()
	res, err := env.documents.RunCycle(context.Background(), source, tracker)
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.Summary.Failed != 1 || len(res.Summary.Errors) != 1 {
		t.Fatalf("expected 1 failure, got %d (%d errors)", res.Summary.Failed, len(res.Summary.Errors))
	}
	if res.Summary.Errors[0].Stage != stageIndex {
		t.Errorf("expected index stage, got %s", res.Summary.Errors[0].Stage)
	}
	if kind := tracker.ForSource(source.ID)[0].Kind; kind != domain.ErrorKindIndex {
		t.Errorf("expected an index error, got %s", kind)
	}
}

func TestDocumentProcessor_RejectsListingSource(t *testing.T) {
	source := createTestPDFIndexSource(t, "reports", listingURL)
	env := newTestEnv(t, source)

	_, err := env.documents.RunCycle(context.Background(), source, newTestErrorTracker())
	if !errors.Is(err, domain.ErrUnsupportedKind) {
		t.Errorf("expected ErrUnsupportedKind, got %v", err)
	}
}

type upperCasePost struct{}

func (upperCasePost) Process(content *domain.ExtractedContent) {
	content.Text = strings.ToUpper(content.Text)
}
func (upperCasePost) List() []string { return []string{"upper"} }

func TestDocumentProcessor_AppliesPostProcessors(t *testing.T) {
	source := createTestFileSource(t, "policy", pageURL)
	env := newTestEnv(t, source)
	env.fetcher.SetPayload(pageURL, "text/html", []byte("<p>v1</p>"))

	processor := NewDocumentProcessor(DocumentProcessorConfig{
		Fetcher:        env.fetcher,
		Extractor:      env.extractor,
		Versions:       env.versionTracker,
		Transactions:   env.transactions,
		Executor:       env.exec,
		Logger:         discardLogger(),
		Now:            env.clock.Now,
		PostProcessors: upperCasePost{},
	})

	res, err := processor.RunCycle(context.Background(), source, newTestErrorTracker())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Processed != 1 {
		t.Errorf("expected 1 processed, got %d", res.Summary.Processed)
	}

	docs := env.index.Documents(testIndex)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Content != "<P>V1</P>" {
		t.Errorf("expected post-processed content, got %q", docs[0].Content)
	}
	// the hash follows the raw payload
	if docs[0].ContentHash != domain.ComputeContentHash([]byte("<p>v1</p>")) {
		t.Errorf("unexpected content hash %s", docs[0].ContentHash)
	}
}
