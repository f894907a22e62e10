package transporthttp

import (
	"net/http"
	"strconv"

	"rayven/internal/lunar"
	"rayven/internal/market"
	"rayven/internal/memory"
	"rayven/internal/progression"
	"rayven/internal/recorder"
	"rayven/internal/report"
	"rayven/internal/store"

	"github.com/gin-gonic/gin"
)

// Router 暴露决策日志、账本、学习成果与进阶状态的查询接口，
// 外加一个手动平仓入口。
type Router struct {
	Store    *store.Store
	Memory   *memory.Memory
	Prog     *progression.Machine
	Moon     *lunar.Tracker
	Account  *market.PaperAccount
	Recorder *recorder.Recorder
}

// Register 将接口挂载到 /api 分组。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/decisions", r.handleDecisions)
	group.GET("/trades", r.handleTrades)
	group.GET("/positions", r.handlePositions)
	group.GET("/patterns", r.handlePatterns)
	group.GET("/lunar", r.handleLunar)
	group.GET("/moon", r.handleMoon)
	group.GET("/progression", r.handleProgression)
	group.GET("/insights", r.handleInsights)
	group.GET("/report/patterns", r.handlePatternReport)
	group.GET("/report/lunar", r.handleLunarReport)
	if r.Recorder != nil {
		group.POST("/outcome", r.handleManualClose)
	}
}

func (r *Router) handleDecisions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	decisions, err := r.Store.ListDecisions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

func (r *Router) handleTrades(c *gin.Context) {
	trades, err := r.Store.ListTrades(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (r *Router) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"positions": r.Account.Positions(),
		"balance":   r.Account.Balance(),
		"available": r.Account.Available(),
	})
}

func (r *Router) handlePatterns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"patterns": r.Memory.PatternStats()})
}

func (r *Router) handleLunar(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lunar": r.Memory.LunarStats()})
}

func (r *Router) handleMoon(c *gin.Context) {
	snap := r.Moon.Current()
	c.JSON(http.StatusOK, gin.H{
		"phase":           snap.Phase,
		"day_in_cycle":    snap.DayInCycle,
		"illumination":    snap.Illumination,
		"is_full_moon":    snap.IsFullMoon,
		"is_new_moon":     snap.IsNewMoon,
		"days_until_full": snap.DaysUntilFull,
		"days_until_new":  snap.DaysUntilNew,
		"description":     lunar.Description(snap.Phase),
	})
}

func (r *Router) handleProgression(c *gin.Context) {
	c.JSON(http.StatusOK, r.Prog.Report())
}

func (r *Router) handleInsights(c *gin.Context) {
	c.JSON(http.StatusOK, r.Memory.Summarize())
}

func (r *Router) handlePatternReport(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderPatternChart(c.Writer, r.Memory.PatternStats()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (r *Router) handleLunarReport(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderLunarChart(c.Writer, r.Memory.LunarStats()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type manualCloseRequest struct {
	Instrument string  `json:"instrument" binding:"required"`
	ExitPrice  float64 `json:"exit_price" binding:"required,gt=0"`
}

// handleManualClose 手动平仓：走与自动平仓完全相同的记录路径。
func (r *Router) handleManualClose(c *gin.Context) {
	var req manualCloseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	trade, err := r.Recorder.Close(c.Request.Context(), req.Instrument, req.ExitPrice, "manual close")
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}
