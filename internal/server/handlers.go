package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/app"
	"github.com/cesilk/comfy-nodes/internal/db/models"
	"github.com/cesilk/comfy-nodes/internal/db/repository"
	"github.com/cesilk/comfy-nodes/internal/services/filestorage"
	"github.com/cesilk/comfy-nodes/internal/worker"
	"github.com/cesilk/comfy-nodes/internal/workflow/executor"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
)

const defaultHistoryItems = 64

type promptRequest struct {
	Prompt    json.RawMessage `json:"prompt"`
	ClientID  string          `json:"client_id"`
	ExtraData struct {
		ExtraPNGInfo json.RawMessage `json:"extra_pnginfo"`
	} `json:"extra_data"`
}

type promptError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details"`
}

type nodeErrorResponse struct {
	Errors    []promptError `json:"errors"`
	ClassType string        `json:"class_type"`
}

func GetObjectInfo(ctx *gin.Context) {
	app := ctx.MustGet("app").(*app.App)
	ctx.JSON(http.StatusOK, app.Registry().ObjectInfo())
}

func GetNodeInfo(ctx *gin.Context) {
	app := ctx.MustGet("app").(*app.App)

	node, err := app.Registry().Get(ctx.Param("class"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
		return
	}

	def := node.Definition()
	ctx.JSON(http.StatusOK, map[string]*nodes.Definition{def.Class: def})
}

func QueuePrompt(ctx *gin.Context) {
	app := ctx.MustGet("app").(*app.App)

	var req promptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || len(req.Prompt) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error":       promptError{Type: "no_prompt", Message: "No prompt provided"},
			"node_errors": gin.H{},
		})
		return
	}

	queue := app.Queue()
	if queue == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"message": "prompt queue is not available"})
		return
	}

	record, err := queue.Submit(ctx.Request.Context(), worker.Submission{
		Prompt:       req.Prompt,
		ExtraPNGInfo: req.ExtraData.ExtraPNGInfo,
		ClientID:     req.ClientID,
	})
	if err != nil {
		status, body := promptErrorResponse(err)
		if status == http.StatusInternalServerError {
			app.Logger.Error("failed to queue prompt", zap.Error(err))
		}
		ctx.JSON(status, body)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"prompt_id":   record.ID.String(),
		"number":      record.Number,
		"node_errors": gin.H{},
	})
}

func promptErrorResponse(err error) (int, gin.H) {
	var nodeErrors executor.NodeErrors
	switch {
	case errors.As(err, &nodeErrors):
		details := make(map[string]nodeErrorResponse, len(nodeErrors))
		for id, v := range nodeErrors {
			resp := nodeErrorResponse{ClassType: v.Class}
			for _, e := range v.Errors {
				pe := promptError{Type: "value_not_valid", Message: e.Error()}
				var verr *nodes.ValidationError
				if errors.As(e, &verr) {
					pe.Message = verr.Message
					pe.Details = verr.Input
				}
				if errors.Is(e, nodes.ErrUnknownClass) {
					pe.Type = "invalid_prompt"
				}
				resp.Errors = append(resp.Errors, pe)
			}
			details[id] = resp
		}

		return http.StatusBadRequest, gin.H{
			"error":       promptError{Type: "prompt_outputs_failed_validation", Message: "Prompt outputs failed validation"},
			"node_errors": details,
		}
	case errors.Is(err, executor.ErrNoOutputs):
		return http.StatusBadRequest, gin.H{
			"error":       promptError{Type: "prompt_no_outputs", Message: "Prompt has no outputs"},
			"node_errors": gin.H{},
		}
	case errors.Is(err, executor.ErrInvalidPrompt), errors.Is(err, executor.ErrCycle), errors.Is(err, executor.ErrBadLink):
		return http.StatusBadRequest, gin.H{
			"error":       promptError{Type: "invalid_prompt", Message: err.Error()},
			"node_errors": gin.H{},
		}
	default:
		return http.StatusInternalServerError, gin.H{"message": "failed to queue prompt"}
	}
}

func historyEntry(p *models.Prompt) gin.H {
	outputs := json.RawMessage("{}")
	if len(p.Outputs) > 0 {
		outputs = p.Outputs
	}

	status := gin.H{
		"status_str": statusString(p.Status),
		"completed":  p.Status == models.PromptStatusCompleted,
		"messages":   []string{},
	}
	if p.Error != "" {
		status["messages"] = []string{p.Error}
	}

	return gin.H{
		"prompt":  gin.H{"number": p.Number, "prompt_id": p.ID.String(), "prompt": p.Prompt},
		"outputs": outputs,
		"status":  status,
	}
}

func statusString(status models.PromptStatus) string {
	switch status {
	case models.PromptStatusCompleted:
		return "success"
	case models.PromptStatusFailed:
		return "error"
	case models.PromptStatusRunning:
		return "running"
	default:
		return "queued"
	}
}

func GetHistory(ctx *gin.Context) {
	app := ctx.MustGet("app").(*app.App)
	if app.PromptRepository == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"message": "history is not available"})
		return
	}

	id := ctx.Param("prompt_id")
	prompt, err := app.PromptRepository.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ctx.JSON(http.StatusOK, gin.H{})
			return
		}
		app.Logger.Error("failed to load prompt", zap.String("prompt_id", id), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load prompt"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{id: historyEntry(prompt)})
}

func ListHistory(ctx *gin.Context) {
	app := ctx.MustGet("app").(*app.App)
	if app.PromptRepository == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"message": "history is not available"})
		return
	}

	limit := defaultHistoryItems
	if raw := ctx.Query("max_items"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			ctx.JSON(http.StatusBadRequest, gin.H{"message": "invalid max_items"})
			return
		}
		limit = n
	}

	prompts, err := app.PromptRepository.List(ctx.Request.Context(), limit)
	if err != nil {
		app.Logger.Error("failed to list prompts", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"message": "failed to list prompts"})
		return
	}

	history := make(gin.H, len(prompts))
	for i := range prompts {
		history[prompts[i].ID.String()] = historyEntry(&prompts[i])
	}
	ctx.JSON(http.StatusOK, history)
}

func ViewFile(ctx *gin.Context) {
	app := ctx.MustGet("app").(*app.App)

	filename := ctx.Query("filename")
	if filename == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "missing filename"})
		return
	}
	if kind := ctx.DefaultQuery("type", filestorage.FolderTypeOutput); kind != filestorage.FolderTypeOutput {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "unsupported folder type: " + kind})
		return
	}

	path, err := app.Storage().ResolveFile(filename, ctx.Query("subfolder"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"message": "file not found"})
		return
	}

	mtype, err := mimetype.DetectFile(path)
	if err == nil {
		ctx.Header("Content-Type", mtype.String())
	}
	ctx.File(path)
}
