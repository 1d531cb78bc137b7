package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/companion/internal/api"
	"github.com/dmitrijs2005/companion/internal/client/client"
	"github.com/dmitrijs2005/companion/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient embeds the interface; unimplemented methods panic if called.
type fakeClient struct {
	client.Client
	addr, token string
	deadline    bool
	closed      bool

	sent       string
	cleared    []string
	listReq    *api.AdminListExchangesRequest
	deletedFor string
	permanent  bool
	sendErr    error
}

func (f *fakeClient) Close() error { f.closed = true; return nil }

func (f *fakeClient) Ping(ctx context.Context) error {
	_, f.deadline = ctx.Deadline()
	return nil
}

func (f *fakeClient) Send(ctx context.Context, message string) (*api.Exchange, error) {
	f.sent = message
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &api.Exchange{ID: "e1", Message: message, Response: "Lovely to hear, Margaret."}, nil
}

func (f *fakeClient) History(ctx context.Context, limit, offset int) (*api.HistoryResponse, error) {
	return &api.HistoryResponse{
		Exchanges: []api.Exchange{{ID: "e2", Message: "hi", Response: "hello", CreatedAt: time.Now()}},
		Total:     9,
	}, nil
}

func (f *fakeClient) Clear(ctx context.Context, ids []string) (int, error) {
	f.cleared = ids
	return 4, nil
}

func (f *fakeClient) AdminList(ctx context.Context, req *api.AdminListExchangesRequest) (*api.AdminListExchangesResponse, error) {
	f.listReq = req
	return &api.AdminListExchangesResponse{Total: 3, Active: 2, Deleted: 1}, nil
}

func (f *fakeClient) AdminDelete(ctx context.Context, owner string, permanent bool) (int, error) {
	f.deletedFor, f.permanent = owner, permanent
	return 5, nil
}

func (f *fakeClient) AdminReconcile(ctx context.Context) (*api.AdminReconcileResponse, error) {
	return &api.AdminReconcileResponse{Drained: 1, Reindexed: 2}, nil
}

func run(t *testing.T, fc *fakeClient, args ...string) (string, error) {
	t.Helper()
	dial := func(addr, token string) (client.Client, error) {
		fc.addr, fc.token = addr, token
		return fc, nil
	}
	root := NewRootCmd(dial)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSend_JoinsArgsAndPrintsReply(t *testing.T) {
	fc := &fakeClient{}
	out, err := run(t, fc, "--addr", "srv:1", "--token", "tok", "send", "I", "baked", "bread")
	require.NoError(t, err)

	assert.Equal(t, "I baked bread", fc.sent)
	assert.Equal(t, "srv:1", fc.addr)
	assert.Equal(t, "tok", fc.token)
	assert.Equal(t, "Lovely to hear, Margaret.\n", out)
	assert.True(t, fc.closed)
}

func TestSend_JSONFormat(t *testing.T) {
	fc := &fakeClient{}
	out, err := run(t, fc, "-f", "json", "send", "hi")
	require.NoError(t, err)

	var ex api.Exchange
	require.NoError(t, json.Unmarshal([]byte(out), &ex))
	assert.Equal(t, "e1", ex.ID)
}

func TestSend_PropagatesError(t *testing.T) {
	fc := &fakeClient{sendErr: client.ErrUnavailable}
	_, err := run(t, fc, "send", "hi")
	require.ErrorIs(t, err, client.ErrUnavailable)
}

func TestSend_RequiresMessage(t *testing.T) {
	_, err := run(t, &fakeClient{}, "send")
	require.Error(t, err)
}

func TestPing_AppliesTimeout(t *testing.T) {
	fc := &fakeClient{}
	out, err := run(t, fc, "--timeout", "5s", "ping")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
	assert.True(t, fc.deadline)
}

func TestHistoryAndClear(t *testing.T) {
	fc := &fakeClient{}
	out, err := run(t, fc, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "you: hi")
	assert.Contains(t, out, "1 of 9 exchanges")

	out, err = run(t, fc, "clear", "e1", "e2")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, fc.cleared)
	assert.Equal(t, "cleared 4 exchanges\n", out)
}

func TestAdminCommands(t *testing.T) {
	fc := &fakeClient{}

	out, err := run(t, fc, "admin", "list", "u1", "--visibility", "deleted", "-n", "5")
	require.NoError(t, err)
	assert.Equal(t, &api.AdminListExchangesRequest{OwnerID: "u1", Visibility: "deleted", Limit: 5}, fc.listReq)
	assert.Contains(t, out, "total 3 (active 2, deleted 1)")

	out, err = run(t, fc, "admin", "delete", "u1", "--permanent")
	require.NoError(t, err)
	assert.Equal(t, "u1", fc.deletedFor)
	assert.True(t, fc.permanent)
	assert.Equal(t, "purged 5 exchanges\n", out)

	out, err = run(t, fc, "admin", "reconcile")
	require.NoError(t, err)
	assert.Equal(t, "drained 1, failed 0, removed 0, reindexed 2\n", out)
}

func TestToken_MintsParseableToken(t *testing.T) {
	out, err := run(t, &fakeClient{}, "token", "--user", "u1", "--name", "Margaret", "--admin", "--secret", "s3")
	require.NoError(t, err)

	id, err := auth.ParseToken(strings.TrimSpace(out), []byte("s3"))
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "u1", DisplayName: "Margaret", Admin: true}, *id)

	_, err = run(t, &fakeClient{}, "token")
	assert.Error(t, err, "--user is required")
}

func TestConfigFile_FlagsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_endpoint_addr":"from-file:1","access_token":"file-token"}`), 0o600))

	fc := &fakeClient{}
	_, err := run(t, fc, "-c", path, "--addr", "from-flag:2", "ping")
	require.NoError(t, err)
	assert.Equal(t, "from-flag:2", fc.addr)
	assert.Equal(t, "file-token", fc.token)
}
