package ledger

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/skillhub-dev/skillhub/internal/db"
)

// GetUserTransactions returns the caller's money-movement history.
// Query params: status, from, to (RFC3339 or YYYY-MM-DD), limit, offset.
func GetUserTransactions(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized or invalid user"})
	}

	var f Filter
	f.Status = c.QueryParam("status")
	if v := c.QueryParam("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from date"})
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to date"})
		}
		f.To = &t
	}
	if v := c.QueryParam("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := c.QueryParam("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	txs, err := History(context.Background(), db.Conn, uid, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch transactions"})
	}

	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
