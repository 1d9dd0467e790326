package dia

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	answer  string
	err     error
	queries []string
	uuids   []string
}

func (c *fakeChat) Send(_ context.Context, query string) (string, error) {
	c.queries = append(c.queries, query)
	return c.answer, c.err
}

func (c *fakeChat) AddFileUUID(uuid string) { c.uuids = append(c.uuids, uuid) }

type fakeUploader struct {
	uuid  string
	err   error
	paths []string
	data  []string
}

func (u *fakeUploader) Upload(_ context.Context, path, _ string) (string, error) {
	u.paths = append(u.paths, path)
	if b, err := os.ReadFile(path); err == nil {
		u.data = append(u.data, string(b))
	}
	return u.uuid, u.err
}

func newTestService(t *testing.T, chat *fakeChat, up *fakeUploader) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	return NewService(up, func() Chat { return chat }, "wf-1", dir), dir
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	items, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name()
	}
	return names
}

func TestService_Analyze_TextOnly(t *testing.T) {
	chat := &fakeChat{answer: "analysis result"}
	svc, _ := newTestService(t, chat, &fakeUploader{})

	out, err := svc.Analyze(context.Background(), AnalyzeRequest{Text: "new vendor will process customer data"})

	require.NoError(t, err)
	assert.Equal(t, "analysis result", out)
	require.Len(t, chat.queries, 1)
	assert.Equal(t, "Based on the following description, provide a detailed analysis and answer: new vendor will process customer data", chat.queries[0])
	assert.Empty(t, chat.uuids)
}

func TestService_Analyze_FileOnly(t *testing.T) {
	chat := &fakeChat{answer: "file analysis"}
	up := &fakeUploader{uuid: "file-uuid-1"}
	svc, dir := newTestService(t, chat, up)

	out, err := svc.Analyze(context.Background(), AnalyzeRequest{
		FileName: "assessment.pdf",
		File:     strings.NewReader("pdf bytes"),
	})

	require.NoError(t, err)
	assert.Equal(t, "file analysis", out)
	assert.Equal(t, []string{"file-uuid-1"}, chat.uuids)
	assert.Equal(t, []string{"Provide a detailed analysis of the uploaded document."}, chat.queries)

	// Staging copy kept the extension and received the content, and was
	// removed after the request.
	require.Len(t, up.paths, 1)
	assert.Equal(t, ".pdf", filepath.Ext(up.paths[0]))
	assert.Equal(t, []string{"pdf bytes"}, up.data)
	assert.Empty(t, entries(t, dir))
}

func TestService_Analyze_FileAndText(t *testing.T) {
	chat := &fakeChat{answer: "combined"}
	svc, _ := newTestService(t, chat, &fakeUploader{uuid: "u"})

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		FileName: "doc.txt",
		File:     strings.NewReader("content"),
		Text:     "focus on retention",
	})

	require.NoError(t, err)
	require.Len(t, chat.queries, 1)
	assert.Equal(t, "Based on the uploaded document and the following description, provide a detailed analysis and answer: focus on retention", chat.queries[0])
}

func TestService_Analyze_NoInput(t *testing.T) {
	svc, _ := newTestService(t, &fakeChat{}, &fakeUploader{})

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{})

	assert.ErrorIs(t, err, ErrNoInput)
}

func TestService_Analyze_UploadErrorCleansUp(t *testing.T) {
	up := &fakeUploader{err: errors.New("file api down")}
	svc, dir := newTestService(t, &fakeChat{}, up)

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		FileName: "doc.txt",
		File:     strings.NewReader("content"),
	})

	assert.ErrorContains(t, err, "file api down")
	assert.Empty(t, entries(t, dir))
}

func TestService_Analyze_EmptyAnswer(t *testing.T) {
	svc, _ := newTestService(t, &fakeChat{answer: ""}, &fakeUploader{})

	out, err := svc.Analyze(context.Background(), AnalyzeRequest{Text: "question"})

	require.NoError(t, err)
	assert.Equal(t, "No response received from the AI service.", out)
}
