package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/courtbook/court-booking/internal/model"
)

// AdminRuleHandler manages pricing rules.  Every mutation advances the
// rule set version, so in-flight quotes can be detected as stale by
// comparing versions at booking time.
type AdminRuleHandler struct {
	Rules RuleStore
}

// NewAdminRuleHandler constructs an AdminRuleHandler.
func NewAdminRuleHandler(rules RuleStore) *AdminRuleHandler {
	if rules == nil {
		panic("nil rule store passed to NewAdminRuleHandler")
	}
	return &AdminRuleHandler{Rules: rules}
}

type ruleReq struct {
	Name     string          `json:"name"`
	Enabled  *bool           `json:"enabled"`
	Priority int             `json:"priority"`
	Match    model.RuleMatch `json:"match"`
	Modifier model.Modifier  `json:"modifier"`
	Stack    string          `json:"stack_behavior"`
}

func (r ruleReq) validate() (model.PricingRule, error) {
	if strings.TrimSpace(r.Name) == "" {
		return model.PricingRule{}, errors.New("name is required")
	}
	switch r.Modifier.Kind {
	case model.ModifierPercentage, model.ModifierAbsolute:
	default:
		return model.PricingRule{}, errors.New("modifier.kind must be percentage or absolute")
	}
	stack := model.StackBehavior(strings.ToLower(strings.TrimSpace(r.Stack)))
	switch stack {
	case model.StackAdditive, model.StackMultiplicative, model.StackMax:
	default:
		return model.PricingRule{}, errors.New("stack_behavior must be additive, multiplicative or max")
	}
	if r.Match.StartTime != "" || r.Match.EndTime != "" {
		// Both bounds or neither; a half-open time-of-day range is a
		// config mistake, not a wildcard.
		if r.Match.StartTime == "" || r.Match.EndTime == "" {
			return model.PricingRule{}, errors.New("match.start and match.end must be set together")
		}
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return model.PricingRule{
		Name: strings.TrimSpace(r.Name), Enabled: enabled, Priority: r.Priority,
		Match: r.Match, Modifier: r.Modifier, Stack: stack,
	}, nil
}

// List handles GET /v1/admin/pricing-rules.
func (h *AdminRuleHandler) List(c echo.Context) error {
	rules, err := h.Rules.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"rules": rules})
}

// Create handles POST /v1/admin/pricing-rules.
func (h *AdminRuleHandler) Create(c echo.Context) error {
	var req ruleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	rule, err := req.validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err := h.Rules.Upsert(c.Request().Context(), &rule); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create rule failed"})
	}
	return c.JSON(http.StatusCreated, rule)
}

// Update handles PUT /v1/admin/pricing-rules/:id.
func (h *AdminRuleHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid rule id"})
	}
	var req ruleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	rule, err := req.validate()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	rule.ID = id
	if err := h.Rules.Upsert(c.Request().Context(), &rule); err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "rule not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update rule failed"})
	}
	return c.JSON(http.StatusOK, rule)
}

// Delete handles DELETE /v1/admin/pricing-rules/:id.
func (h *AdminRuleHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid rule id"})
	}
	if err := h.Rules.Delete(c.Request().Context(), id); err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "rule not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete rule failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
