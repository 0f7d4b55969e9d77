package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/handlepay/handlepay-cctp/circle"
	"github.com/handlepay/handlepay-cctp/orchestrator"
	"github.com/handlepay/handlepay-cctp/relayer"
	"github.com/handlepay/handlepay-cctp/store"
	"github.com/handlepay/handlepay-cctp/types"
)

const (
	processingQueueSize = 10000

	// checkpoints younger than this are left to the job that wrote them
	sweepGrace = 30 * time.Second
)

// Dispatcher runs payments. orchestrator.Router is the production implementation.
type Dispatcher interface {
	Request(order orchestrator.PaymentOrder) (*types.TransferRequest, error)
	Pay(ctx context.Context, order orchestrator.PaymentOrder) (*orchestrator.Outcome, error)
	Resume(ctx context.Context, burnTxHash common.Hash, req *types.TransferRequest) <-chan types.TransferState
	Registry() *types.ChainRegistry
}

// Job is one queued payment. BurnTxHash is set when the job resumes an existing burn.
type Job struct {
	ID         string
	Order      orchestrator.PaymentOrder
	BurnTxHash common.Hash
}

// JobStatus is the latest known outcome of a job.
type JobStatus struct {
	ID       string                `json:"id"`
	State    *types.TransferState  `json:"state,omitempty"`
	Receipt  *types.PaymentReceipt `json:"receipt,omitempty"`
	Error    string                `json:"error,omitempty"`
	ErrorTag string                `json:"errorTag,omitempty"`
	Running  bool                  `json:"running"`
	Finished bool                  `json:"finished"`
	Created  time.Time             `json:"created"`
	Updated  time.Time             `json:"updated"`
}

// JobStore maps job ids and burn hashes to the job's status.
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[string]*JobStatus
	byBurn map[common.Hash]string
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs:   make(map[string]*JobStatus),
		byBurn: make(map[common.Hash]string),
	}
}

func (s *JobStore) update(id string, fn func(*JobStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	fn(j)
	j.Updated = time.Now()
	if j.State != nil && j.State.BurnTxHash != (common.Hash{}) {
		s.byBurn[j.State.BurnTxHash] = id
	}
}

// AddIfAbsent adds job unless a queued or running job already owns its burn. It reports whether the job was added.
func (s *JobStore) AddIfAbsent(job *Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.BurnTxHash != (common.Hash{}) {
		if id, ok := s.byBurn[job.BurnTxHash]; ok && !s.jobs[id].Finished {
			return false
		}
	}
	now := time.Now()
	s.jobs[job.ID] = &JobStatus{ID: job.ID, Created: now, Updated: now}
	if job.BurnTxHash != (common.Hash{}) {
		s.byBurn[job.BurnTxHash] = job.ID
	}
	return true
}

// Load finds a job by id or by burn transaction hash and returns a copy.
func (s *JobStore) Load(key string) (JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[key]
	if !ok && isHash(key) {
		if id, found := s.byBurn[common.HexToHash(key)]; found {
			j, ok = s.jobs[id]
		}
	}
	if !ok {
		return JobStatus{}, false
	}
	out := *j
	if j.State != nil {
		state := *j.State
		out.State = &state
	}
	return out, true
}

// Active reports whether a queued or running job owns the burn.
func (s *JobStore) Active(burnTxHash common.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byBurn[burnTxHash]
	if !ok {
		return false
	}
	return !s.jobs[id].Finished
}

func Start(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the payment API, transfer workers and checkpoint recovery",

		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.InitAppState()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.Logger
			cfg := a.Config

			port, err := cmd.Flags().GetInt16(flagMetricsPort)
			if err != nil {
				return fmt.Errorf("invalid port error=%w", err)
			}
			address, err := cmd.Flags().GetString(flagMetricsAddress)
			if err != nil {
				return fmt.Errorf("invalid address error=%w", err)
			}
			metrics := relayer.InitPromMetrics(address, port)

			registry, err := cfg.ChainRegistry()
			if err != nil {
				return fmt.Errorf("error creating chain registry error=%w", err)
			}
			var domains []types.Domain
			for _, key := range registry.Keys() {
				c, _ := registry.Describe(key)
				domains = append(domains, c.Domain)
			}

			// Start Fast Transfer allowance monitor (v2 only)
			var opts []orchestrator.Option
			monitor := circle.StartAllowanceMonitor(ctx, circle.NewClient(cfg.Circle, logger), cfg.Circle, logger, domains, metrics)
			if monitor != nil {
				opts = append(opts, orchestrator.WithAllowanceState(monitor.State()))
			}

			s, err := NewServices(ctx, a, metrics, opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			router, err := s.RequireRouter()
			if err != nil {
				return err
			}

			if s.Index != nil {
				chain, err := s.Registry.Describe(cfg.Registry.Chain)
				if err != nil {
					return err
				}
				client, err := s.Pool.StreamClient(ctx, chain)
				if err != nil {
					return fmt.Errorf("error initializing registry index client error=%w", err)
				}
				go s.Index.Start(ctx, client)
			}

			jobs := NewJobStore()
			processingQueue := make(chan *Job, processingQueueSize)

			// spin up Processor worker pool
			for i := 0; i < int(cfg.ProcessorWorkerCount); i++ {
				go StartProcessor(ctx, logger, router, jobs, processingQueue)
			}

			sweeper := cron.New()
			if _, err := sweeper.AddFunc(cfg.RecoverySchedule, func() {
				SweepCheckpoints(ctx, logger, s.Store, jobs, processingQueue, metrics)
			}); err != nil {
				return fmt.Errorf("invalid recovery-schedule %q: %w", cfg.RecoverySchedule, err)
			}
			sweeper.Start()
			defer sweeper.Stop()

			// resume whatever the previous run left behind
			go SweepCheckpoints(ctx, logger, s.Store, jobs, processingQueue, metrics)

			api := NewAPI(router, s.Handles, s.Fees, s.Store, jobs, processingQueue, logger)
			go startAPI(a, api)

			// wait for context to be done
			<-ctx.Done()
			logger.Info("Shutting down", "pending_jobs", len(processingQueue))
			return nil
		},
	}

	return addMetricsFlags(cmd)
}

// StartProcessor runs queued jobs one at a time until ctx is done.
func StartProcessor(
	ctx context.Context,
	logger log.Logger,
	dispatcher Dispatcher,
	jobs *JobStore,
	processingQueue <-chan *Job,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-processingQueue:
			processJob(ctx, logger, dispatcher, jobs, job)
		}
	}
}

func processJob(ctx context.Context, logger log.Logger, dispatcher Dispatcher, jobs *JobStore, job *Job) {
	logger = logger.With("job", job.ID)
	jobs.update(job.ID, func(j *JobStatus) { j.Running = true })

	finish := func(err error) {
		jobs.update(job.ID, func(j *JobStatus) {
			j.Running = false
			j.Finished = true
			if err != nil {
				j.Error = err.Error()
				j.ErrorTag = types.Tag(err)
			}
		})
	}

	var updates <-chan types.TransferState
	if job.BurnTxHash != (common.Hash{}) {
		req, err := dispatcher.Request(job.Order)
		if err != nil {
			logger.Error("Unable to rebuild transfer request", "burn_tx", job.BurnTxHash.Hex(), "error", err)
			finish(err)
			return
		}
		logger.Info("Resuming transfer", "burn_tx", job.BurnTxHash.Hex())
		updates = dispatcher.Resume(ctx, job.BurnTxHash, req)
	} else {
		outcome, err := dispatcher.Pay(ctx, job.Order)
		if outcome != nil && outcome.Receipt != nil {
			receipt := outcome.Receipt
			jobs.update(job.ID, func(j *JobStatus) { j.Receipt = receipt })
		}
		if err != nil {
			logger.Error("Payment failed", "error", err)
			finish(err)
			return
		}
		if outcome.Updates == nil {
			finish(nil)
			return
		}
		updates = outcome.Updates
	}

	var last types.TransferState
	for s := range updates {
		last = s
		state := s
		jobs.update(job.ID, func(j *JobStatus) { j.State = &state })
	}

	jobs.update(job.ID, func(j *JobStatus) {
		j.Running = false
		j.Finished = true
		j.Error = last.LastError
		j.ErrorTag = last.ErrorTag
	})
	if !last.Terminal() {
		logger.Info("Transfer interrupted; left for recovery", "burn_tx", last.BurnTxHash.Hex(), "phase", last.Phase)
	}
}

// SweepCheckpoints queues a resume job for every stored burn without a completed mint that no job owns.
func SweepCheckpoints(
	ctx context.Context,
	logger log.Logger,
	checkpoints store.CheckpointStore,
	jobs *JobStore,
	processingQueue chan<- *Job,
	metrics *relayer.PromMetrics,
) {
	pending, err := checkpoints.Pending(ctx)
	if err != nil {
		logger.Error("Unable to list pending checkpoints", "error", err)
		return
	}
	metrics.SetPendingCheckpoints(len(pending))

	cutoff := time.Now().Add(-sweepGrace)
	for _, cp := range pending {
		// a running payment registers its burn just after the checkpoint is written
		if cp.CreatedAt.After(cutoff) {
			continue
		}
		job := &Job{
			ID:         uuid.NewString(),
			Order:      orderFromCheckpoint(cp),
			BurnTxHash: cp.BurnTxHash,
		}
		if !jobs.AddIfAbsent(job) {
			continue
		}
		select {
		case processingQueue <- job:
			logger.Debug("Queued checkpoint for recovery", "burn_tx", cp.BurnTxHash.Hex(), "job", job.ID)
		case <-ctx.Done():
			return
		}
	}
}

func orderFromCheckpoint(cp *types.Checkpoint) orchestrator.PaymentOrder {
	return orchestrator.PaymentOrder{
		SourceChain:      cp.SourceChain,
		DestinationChain: cp.DestinationChain,
		Recipient:        cp.Recipient,
		Amount:           cp.Amount,
		Finality:         cp.Finality,
		Mode:             cp.Mode,
		HookPayload:      cp.HookPayload,
	}
}

func startAPI(a *AppState, api *API) {
	logger := a.Logger
	cfg := a.Config

	engine := api.Engine()
	if err := engine.SetTrustedProxies(cfg.API.TrustedProxies); err != nil {
		logger.Error("Unable to set trusted proxies on API server: " + err.Error())
		os.Exit(1)
	}

	if err := engine.Run(cfg.API.Address); err != nil {
		logger.Error("Unable to start API server: " + err.Error())
		os.Exit(1)
	}
}
