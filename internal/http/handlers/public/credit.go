package public

import (
	"strconv"
	"strings"

	"github.com/chatmeter-next/internal/http/response"
	"github.com/chatmeter-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetMyCredits 获取当前用户积分账户
func (h *Handler) GetMyCredits(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	account, err := h.CreditService.GetAccount(c.Request.Context(), uid)
	if err != nil {
		respondGenerationError(c, err)
		return
	}
	response.Success(c, account)
}

// GetMyCreditTransactions 获取当前用户积分流水
func (h *Handler) GetMyCreditTransactions(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	transactions, total, err := h.CreditService.ListTransactions(c.Request.Context(), repository.CreditTransactionListFilter{
		Page:      page,
		PageSize:  pageSize,
		UserID:    uid,
		Type:      strings.TrimSpace(c.Query("type")),
		Direction: strings.TrimSpace(c.Query("direction")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}

	pagination := response.BuildPagination(page, pageSize, total)
	response.SuccessWithPage(c, transactions, pagination)
}
