package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/handlepay/handlepay-cctp/orchestrator"
	"github.com/handlepay/handlepay-cctp/store"
	"github.com/handlepay/handlepay-cctp/types"
)

// FeeQuoter is the part of circle.FeeEstimator the API exposes.
type FeeQuoter interface {
	MinimumFeeBps(ctx context.Context, src, dst types.Domain, finality types.Finality) (math.LegacyDec, error)
	EstimateMaxFeeForFinality(ctx context.Context, src, dst types.Domain, amount uint64, finality types.Finality) (uint64, error)
}

// API accepts payments onto the processing queue and reports their progress.
type API struct {
	dispatcher  Dispatcher
	handles     types.HandleResolver
	fees        FeeQuoter
	checkpoints store.CheckpointStore
	jobs        *JobStore
	queue       chan<- *Job
	logger      log.Logger
}

func NewAPI(
	dispatcher Dispatcher,
	handles types.HandleResolver,
	fees FeeQuoter,
	checkpoints store.CheckpointStore,
	jobs *JobStore,
	queue chan<- *Job,
	logger log.Logger,
) *API {
	return &API{
		dispatcher:  dispatcher,
		handles:     handles,
		fees:        fees,
		checkpoints: checkpoints,
		jobs:        jobs,
		queue:       queue,
		logger:      logger.With("component", "api"),
	}
}

func (api *API) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/transfers", api.postTransfer)
	router.POST("/transfers/resume", api.postResume)
	router.GET("/transfers/:id", api.getTransfer)
	router.GET("/handles/:platform/:username", api.getHandle)
	router.GET("/fees/:src/:dst", api.getFee)
	return router
}

type transferBody struct {
	From      string `json:"from" binding:"required"`
	To        string `json:"to" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Recipient string `json:"recipient" binding:"omitempty,eth_addr"`
	Handle    string `json:"handle"`
	Finality  string `json:"finality" binding:"omitempty,oneof=fast standard FAST STANDARD"`
	Mode      string `json:"mode" binding:"omitempty,oneof=direct hook DIRECT HOOK"`
	HookData  string `json:"hookData" binding:"omitempty,hexadecimal"`
}

type resumeBody struct {
	BurnTxHash string `json:"burnTxHash" binding:"required,hexadecimal,len=66"`

	// route fields are needed only when no checkpoint was stored for the burn
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient" binding:"omitempty,eth_addr"`
	Finality  string `json:"finality" binding:"omitempty,oneof=fast standard FAST STANDARD"`
	Mode      string `json:"mode" binding:"omitempty,oneof=direct hook DIRECT HOOK"`
	HookData  string `json:"hookData" binding:"omitempty,hexadecimal"`
}

func (api *API) order(ctx context.Context, from, to, amount, recipient, handle, finality, mode, hookData string) (orchestrator.PaymentOrder, error) {
	order := orchestrator.PaymentOrder{SourceChain: from, DestinationChain: to}
	var err error
	if order.Amount, err = types.ParseUSDC(amount); err != nil {
		return order, err
	}
	if order.Finality, err = types.ParseFinality(finality); err != nil {
		return order, fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	if order.Mode, err = types.ParseMode(mode); err != nil {
		return order, fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	if hookData != "" {
		if order.HookPayload, err = hex.DecodeString(strings.TrimPrefix(hookData, "0x")); err != nil {
			return order, fmt.Errorf("%w: hook data is not hex", types.ErrInvalidRequest)
		}
	}
	order.Recipient, err = recipientAddress(ctx, api.handles, recipient, handle)
	return order, err
}

func (api *API) enqueue(c *gin.Context, job *Job) {
	if !api.jobs.AddIfAbsent(job) {
		c.JSON(http.StatusConflict, gin.H{"message": "transfer is already being processed"})
		return
	}
	select {
	case api.queue <- job:
		c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": "/transfers/" + job.ID})
	default:
		api.jobs.update(job.ID, func(j *JobStatus) { j.Finished = true; j.Error = "processing queue full" })
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "processing queue full"})
	}
}

func (api *API) postTransfer(c *gin.Context) {
	var body transferBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	order, err := api.order(c.Request.Context(), body.From, body.To, body.Amount, body.Recipient, body.Handle, body.Finality, body.Mode, body.HookData)
	if err != nil {
		api.abort(c, err)
		return
	}
	if _, err := api.dispatcher.Request(order); err != nil {
		api.abort(c, err)
		return
	}

	api.enqueue(c, &Job{ID: uuid.NewString(), Order: order})
}

func (api *API) postResume(c *gin.Context) {
	var body resumeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	ctx := c.Request.Context()
	burnTxHash := common.HexToHash(body.BurnTxHash)

	if api.jobs.Active(burnTxHash) {
		c.JSON(http.StatusConflict, gin.H{"message": "transfer is already being processed"})
		return
	}

	var order orchestrator.PaymentOrder
	cp, err := api.checkpoints.Get(ctx, burnTxHash)
	switch {
	case err == nil:
		order = orderFromCheckpoint(cp)
	case errors.Is(err, store.ErrNotFound):
		if order, err = api.order(ctx, body.From, body.To, body.Amount, body.Recipient, "", body.Finality, body.Mode, body.HookData); err != nil {
			api.abort(c, err)
			return
		}
	default:
		api.abort(c, err)
		return
	}
	if _, err := api.dispatcher.Request(order); err != nil {
		api.abort(c, err)
		return
	}

	api.enqueue(c, &Job{ID: uuid.NewString(), Order: order, BurnTxHash: burnTxHash})
}

func (api *API) getTransfer(c *gin.Context) {
	status, ok := api.jobs.Load(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "transfer not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (api *API) getHandle(c *gin.Context) {
	binding, err := api.handles.Resolve(c.Request.Context(), c.Param("platform"), c.Param("username"))
	if err != nil {
		api.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, binding)
}

func (api *API) getFee(c *gin.Context) {
	ctx := c.Request.Context()

	src, err := api.dispatcher.Registry().Describe(c.Param("src"))
	if err != nil {
		api.abort(c, err)
		return
	}
	dst, err := api.dispatcher.Registry().Describe(c.Param("dst"))
	if err != nil {
		api.abort(c, err)
		return
	}
	finality, err := types.ParseFinality(c.Query("finality"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	bps, err := api.fees.MinimumFeeBps(ctx, src.Domain, dst.Domain, finality)
	if err != nil {
		api.abort(c, err)
		return
	}
	resp := gin.H{
		"source":      src.Key,
		"destination": dst.Key,
		"finality":    finality.String(),
		"bps":         bps.String(),
	}

	if amount := c.Query("amount"); amount != "" {
		units, err := types.ParseUSDC(amount)
		if err != nil {
			api.abort(c, err)
			return
		}
		maxFee, err := api.fees.EstimateMaxFeeForFinality(ctx, src.Domain, dst.Domain, units, finality)
		if err != nil {
			api.abort(c, err)
			return
		}
		resp["amount"] = types.FormatUSDC(units)
		resp["maxFee"] = types.FormatUSDC(maxFee)
	}

	c.JSON(http.StatusOK, resp)
}

func (api *API) abort(c *gin.Context, err error) {
	status := statusCode(err)
	if status >= http.StatusInternalServerError {
		api.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"message": err.Error(), "tag": types.Tag(err)})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, types.ErrHandleNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrMemberInactive):
		return http.StatusUnprocessableEntity
	case types.IsConfigError(err),
		errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, types.ErrAmountTooLow):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrFeeServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrRPC):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
