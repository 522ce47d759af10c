package contract

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/skillhub-dev/skillhub/internal/db"
)

// CreateContract records an engagement after a proposal is accepted
// upstream. Proposal/job CRUD lives in another service; this only snapshots
// what the money pipeline needs.
func CreateContract(c echo.Context) error {
	clientID, ok := c.Get("user_id").(string)
	if !ok || clientID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		FreelancerID   string `json:"freelancer_id"`
		JobTitle       string `json:"job_title"`
		JobDescription string `json:"job_description"`
		BudgetMin      int64  `json:"budget_min"`
		BudgetMax      int64  `json:"budget_max"`
	}
	if err := c.Bind(&req); err != nil || req.FreelancerID == "" || req.JobTitle == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.BudgetMax <= 0 || req.BudgetMin < 0 || req.BudgetMin > req.BudgetMax {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid budget range"})
	}
	if req.FreelancerID == clientID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "you cannot contract yourself"})
	}

	contractID := uuid.New().String()
	now := time.Now()
	_, err := db.Conn.Exec(context.Background(),
		`INSERT INTO contracts (id, client_id, freelancer_id, job_title, job_description, budget_min, budget_max,
                                status, progress, payment_status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', 'not_started', 'unfunded', $8, $8)`,
		contractID, clientID, req.FreelancerID, req.JobTitle, req.JobDescription,
		req.BudgetMin, req.BudgetMax, now,
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create contract"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"contract_id": contractID,
		"message":     "Contract created. Fund it to start work.",
	})
}

// GetContract returns the contract projection to either participant.
func GetContract(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	contractID := c.Param("id")
	if contractID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing contract id in URL"})
	}

	var ct Contract
	err := db.Conn.QueryRow(context.Background(),
		`SELECT id, client_id, freelancer_id, job_title, COALESCE(job_description, ''), budget_min, budget_max,
                status, progress, payment_status, payment_id, payout_id, funded_at, paid_at, created_at, updated_at
         FROM contracts WHERE id = $1`, contractID,
	).Scan(&ct.ID, &ct.ClientID, &ct.FreelancerID, &ct.JobTitle, &ct.JobDescription,
		&ct.BudgetMin, &ct.BudgetMax, &ct.Status, &ct.Progress, &ct.PaymentStatus,
		&ct.PaymentID, &ct.PayoutID, &ct.FundedAt, &ct.PaidAt, &ct.CreatedAt, &ct.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "contract not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch contract"})
	}

	if !ct.Participant(uid) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, ct)
}

// UpdateProgress lets the working party move the progress axis. Money state
// never changes here.
func UpdateProgress(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	contractID := c.Param("id")
	if contractID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing contract id in URL"})
	}

	var req struct {
		Progress string `json:"progress"`
	}
	if err := c.Bind(&req); err != nil || !ValidProgress(req.Progress) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid progress value"})
	}

	res, err := db.Conn.Exec(context.Background(),
		`UPDATE contracts SET progress = $1, updated_at = NOW()
         WHERE id = $2 AND freelancer_id = $3 AND status = 'active'`,
		req.Progress, contractID, uid,
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update progress"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "contract not found, not active, or not yours"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Progress updated", "progress": req.Progress})
}
