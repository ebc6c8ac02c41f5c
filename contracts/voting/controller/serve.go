package controller

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.dedis.ch/pollchain"
	"go.dedis.ch/pollchain/contracts/voting/client"
	"go.dedis.ch/pollchain/contracts/voting/types"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/indexer"
	"go.dedis.ch/pollchain/indexer/sqlstore"
	"go.dedis.ch/pollchain/server"
	"golang.org/x/xerrors"
)

// indexReader is the part of the index store read by the server.
type indexReader interface {
	Polls(ctx context.Context) ([]sqlstore.Poll, error)
	Candidates(ctx context.Context, poll address.Address) ([]sqlstore.Candidate, error)
	Tally(ctx context.Context, poll address.Address) ([]sqlstore.Tally, error)
}

// indexAction copies the records of the ledger into the index database.
//
// - implements actionTemplate
type indexAction struct{}

// Execute implements actionTemplate.
func (indexAction) Execute(ctx Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	store, err := sqlstore.Open(ctx.Flags.Path("index-db"))
	if err != nil {
		return xerrors.Errorf("failed to open index: %v", err)
	}

	defer store.Close()

	follower := indexer.NewFollower(n.ledger, store, types.ProgramID)

	if ctx.Flags.Bool("follow") {
		return follower.Follow(ctx.Ctx)
	}

	count, err := follower.Sync(ctx.Ctx)
	if err != nil {
		return xerrors.Errorf("failed to sync: %v", err)
	}

	fmt.Fprintf(ctx.Out, "indexed %d records\n", count)

	return nil
}

// serveAction serves the records of the ledger, the index when enabled, and
// the metrics until the process is interrupted.
//
// - implements actionTemplate
type serveAction struct{}

// Execute implements actionTemplate.
func (serveAction) Execute(ctx Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}

	defer n.Close()

	h := handlers{
		polls: n.client,
		clock: ctx.Clock,
	}

	var follower *indexer.Follower

	indexPath := ctx.Flags.Path("index-db")
	if indexPath != "" {
		store, err := sqlstore.Open(indexPath)
		if err != nil {
			return xerrors.Errorf("failed to open index: %v", err)
		}

		defer store.Close()

		h.index = store
		follower = indexer.NewFollower(n.ledger, store, types.ProgramID)
	}

	srv := server.NewHTTP(ctx.Flags.String("listen"))

	err = srv.Listen()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx.Ctx)
	defer cancel()

	follows := make(chan error, 1)

	if follower != nil {
		go func() {
			follows <- follower.Follow(runCtx)
		}()
	} else {
		follows <- nil
	}

	h.register(srv, newRegistry(ctx))

	fmt.Fprintf(ctx.Out, "listening on %s\n", srv.GetAddr())

	serveErr := srv.Serve(runCtx)

	cancel()

	err = <-follows
	if err != nil && serveErr == nil {
		return xerrors.Errorf("indexer failed: %v", err)
	}

	return serveErr
}

// newRegistry returns a registry with the collectors of the packages.
func newRegistry(ctx Context) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, c := range pollchain.PromCollectors {
		err := registry.Register(c)
		if err != nil {
			fmt.Fprintf(ctx.Out, "ERROR: failed to register: %v\n", err)
		}
	}

	return registry
}

// registrar is the server the handlers are registered to.
type registrar interface {
	RegisterHandler(pattern string, handler http.Handler)
}

// handlers are the HTTP handlers of the read endpoints.
type handlers struct {
	polls pollReader
	index indexReader
	clock execution.Clock
}

func (h handlers) register(srv registrar, registry *prometheus.Registry) {
	srv.RegisterHandler("GET /polls/{poll}", http.HandlerFunc(h.getPoll))
	srv.RegisterHandler("GET /polls/{poll}/voters/{voter}", http.HandlerFunc(h.getVoter))
	srv.RegisterHandler("GET /index/polls", http.HandlerFunc(h.listPolls))
	srv.RegisterHandler("GET /index/polls/{poll}/candidates", http.HandlerFunc(h.listCandidates))
	srv.RegisterHandler("GET /index/polls/{poll}/tally", http.HandlerFunc(h.tally))
	srv.RegisterHandler("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func (h handlers) getPoll(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "poll")
	if !ok {
		return
	}

	view, err := readPoll(h.polls, addr, h.clock.Now())
	if xerrors.Is(err, client.ErrNotFound) {
		server.WriteError(w, r, http.StatusNotFound, "poll not found")
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, view)
}

func (h handlers) getVoter(w http.ResponseWriter, r *http.Request) {
	poll, ok := pathAddress(w, r, "poll")
	if !ok {
		return
	}

	voter, ok := pathAddress(w, r, "voter")
	if !ok {
		return
	}

	voted, receipt, err := h.polls.VerifyVote(poll, voter)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, ReceiptView{
		Poll:    poll,
		Voter:   voter,
		Receipt: receipt,
		Voted:   voted,
	})
}

func (h handlers) listPolls(w http.ResponseWriter, r *http.Request) {
	if !h.hasIndex(w, r) {
		return
	}

	polls, err := h.index.Polls(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, polls)
}

func (h handlers) listCandidates(w http.ResponseWriter, r *http.Request) {
	if !h.hasIndex(w, r) {
		return
	}

	poll, ok := pathAddress(w, r, "poll")
	if !ok {
		return
	}

	candidates, err := h.index.Candidates(r.Context(), poll)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, candidates)
}

func (h handlers) tally(w http.ResponseWriter, r *http.Request) {
	if !h.hasIndex(w, r) {
		return
	}

	poll, ok := pathAddress(w, r, "poll")
	if !ok {
		return
	}

	tally, err := h.index.Tally(r.Context(), poll)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, tally)
}

func (h handlers) hasIndex(w http.ResponseWriter, r *http.Request) bool {
	if h.index == nil {
		server.WriteError(w, r, http.StatusNotFound, "index is disabled")
		return false
	}

	return true
}

func (h handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	pollchain.Logger.Warn().Err(err).Str("requestID", server.RequestID(r)).Msg("request failed")

	server.WriteError(w, r, http.StatusInternalServerError, "failed to read the ledger")
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (address.Address, bool) {
	addr, err := address.Parse(r.PathValue(name))
	if err != nil {
		server.WriteError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return address.Address{}, false
	}

	return addr, true
}
