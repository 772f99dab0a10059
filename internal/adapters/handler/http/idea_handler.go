package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

type IdeaHandler struct {
	ledger ports.Ledger
}

func NewIdeaHandler(ledger ports.Ledger) *IdeaHandler {
	return &IdeaHandler{
		ledger: ledger,
	}
}

type submitIdeaRequest struct {
	Email      string            `json:"email"`
	Name       string            `json:"name"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes"`
}

type ideaSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

type submitIdeaResponse struct {
	Success bool        `json:"success"`
	Idea    ideaSummary `json:"idea"`
}

type listIdeasResponse struct {
	Ideas          []*domain.Proposal `json:"ideas"`
	Deadline       string             `json:"deadline"`
	IsPastDeadline bool               `json:"isPastDeadline"`
}

type getIdeaResponse struct {
	Idea *domain.Proposal `json:"idea"`
}

// SubmitIdea godoc
// @Summary      Submits an idea
// @Description  Creates the single idea allowed per email. Rejected once the voting deadline has passed.
// @Tags         ideas
// @Accept       json
// @Produce      json
// @Param        idea  body      submitIdeaRequest  true  "Idea"
// @Success      201   {object}  submitIdeaResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /api/ideas [post]
func (h *IdeaHandler) SubmitIdea(w http.ResponseWriter, r *http.Request) {
	var req submitIdeaRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	proposal, err := h.ledger.SubmitProposal(r.Context(), ports.SubmitProposalInput{
		Email:      req.Email,
		Name:       req.Name,
		Title:      req.Title,
		Body:       req.Body,
		Attributes: req.Attributes,
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitIdeaResponse{
		Success: true,
		Idea: ideaSummary{
			ID:    proposal.ID,
			Name:  proposal.SubmitterName,
			Title: proposal.Title,
		},
	})
}

// ListIdeas godoc
// @Summary      Lists ideas
// @Description  Returns every idea ranked by votes, then by submission time.
// @Tags         ideas
// @Produce      json
// @Success      200  {object}  listIdeasResponse
// @Failure      503  {object}  errorResponse
// @Router       /api/ideas [get]
func (h *IdeaHandler) ListIdeas(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.ledger.ListProposals(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listIdeasResponse{
		Ideas:          proposals,
		Deadline:       h.ledger.Deadline().UTC().Format(time.RFC3339),
		IsPastDeadline: h.ledger.IsClosed(),
	})
}

// GetIdea godoc
// @Summary      Gets an idea
// @Tags         ideas
// @Produce      json
// @Param        id   path      string  true  "Idea ID"
// @Success      200  {object}  getIdeaResponse
// @Failure      404  {object}  errorResponse
// @Router       /api/ideas/{id} [get]
func (h *IdeaHandler) GetIdea(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.ledger.GetProposal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, getIdeaResponse{Idea: proposal})
}
