package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/goldpair/journal"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/signal"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "goldpair version "+version)
}

func TestConfigInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "goldpair.yaml")

	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = run(t, "config", "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "XAU_USD")
}

func TestConfigValidateMissingFile(t *testing.T) {
	_, err := run(t, "config", "validate", "-c", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestJournalSummaryAndTrade(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.NewSQLite(db)
	require.NoError(t, err)
	now := time.Now().UTC()
	for _, tr := range []journal.TradeRecord{
		{Ticket: "11", PairID: "pair-1", Symbol: "XAU_USD", Side: market.Buy, Role: "PARTIAL", Lots: 0.01, EntryPrice: 2000, ExitPrice: 2003, CloseTime: now, Points: 3},
		{Ticket: "12", PairID: "pair-1", Symbol: "XAU_USD", Side: market.Buy, Role: "TRAILING", Lots: 0.01, EntryPrice: 2000, ExitPrice: 1999, CloseTime: now, Points: -1},
	} {
		require.NoError(t, j.RecordTrade(tr))
	}
	require.NoError(t, j.Close())

	out, err := run(t, "journal", "summary", "--db", db, "--days", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Legs:          2")
	assert.Contains(t, out, "Wins/Losses:   1/1")
	assert.Contains(t, out, "Profit factor: 3.00")

	out, err = run(t, "journal", "trade", "11", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "XAU_USD")

	_, err = run(t, "journal", "trade", "99", "--db", db)
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestSendPostsPayload(t *testing.T) {
	var got signal.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	out, err := run(t, "send", "5M ZONE T BUY", "--url", srv.URL, "--id", "a-1", "--approval", "true")
	require.NoError(t, err)
	assert.Contains(t, out, "200 OK")
	assert.Equal(t, "5M ZONE T BUY", got.Signal)
	assert.Equal(t, "a-1", got.SignalID)
	require.NotNil(t, got.Approval)
	assert.True(t, *got.Approval)
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := run(t, "send", "T BUY", "--url", srv.URL, "--id", "a-2", "--approval", "")
	assert.Error(t, err)
}
