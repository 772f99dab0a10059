package http

import (
	"net/http"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

type VoteHandler struct {
	ledger ports.Ledger
}

func NewVoteHandler(ledger ports.Ledger) *VoteHandler {
	return &VoteHandler{
		ledger: ledger,
	}
}

type voteRequest struct {
	Email  string `json:"email"`
	IdeaID string `json:"ideaId"`
}

type voteResponse struct {
	Success bool  `json:"success"`
	Votes   int64 `json:"votes"`
}

type resultsResponse struct {
	Ideas          []*domain.Proposal `json:"ideas"`
	Winner         *domain.Proposal   `json:"winner"`
	IsPastDeadline bool               `json:"isPastDeadline"`
	TotalVotes     int64              `json:"totalVotes"`
}

// CastVote godoc
// @Summary      Votes for an idea
// @Description  Records the single ballot allowed per email and returns the idea's new vote count.
// @Tags         votes
// @Accept       json
// @Produce      json
// @Param        vote  body      voteRequest  true  "Ballot"
// @Success      200   {object}  voteResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /api/vote [post]
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	votes, err := h.ledger.CastVote(r.Context(), ports.CastVoteInput{
		Email:      req.Email,
		ProposalID: req.IdeaID,
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, voteResponse{Success: true, Votes: votes})
}

// Results godoc
// @Summary      Current standings
// @Description  Ranked ideas, the leading idea and the number of ballots cast. Available after the deadline.
// @Tags         votes
// @Produce      json
// @Success      200  {object}  resultsResponse
// @Failure      503  {object}  errorResponse
// @Router       /api/results [get]
func (h *VoteHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.ledger.Results(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resultsResponse{
		Ideas:          results.Ranking,
		Winner:         results.Winner,
		IsPastDeadline: results.IsPastDeadline,
		TotalVotes:     results.TotalBallots,
	})
}
