package livehttp

import (
	"bufio"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"okxbot/internal/executor"
	"okxbot/internal/gateway/okx"
	"okxbot/internal/logger"
	"okxbot/internal/pkg/symbol"
	"okxbot/internal/store"
	"okxbot/internal/store/gormstore"
	"okxbot/internal/types"

	"github.com/gin-gonic/gin"
)

// Router 暴露仓位查询、信号接入与改单接口。
type Router struct {
	State    StateReader
	Entries  EntryService
	Listener ListenerStatus
	// InstType 用于把信号里的交易对写法归一为 instId，默认 SWAP。
	InstType string
	logPath  string
}

func NewRouter(state StateReader, entries EntryService, ls ListenerStatus, logPath string) *Router {
	return &Router{State: state, Entries: entries, Listener: ls, logPath: strings.TrimSpace(logPath)}
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/positions", r.handlePositions)
	group.GET("/trades", r.handleTrades)
	group.GET("/trades/:order_id/events", r.handleTradeEvents)
	group.GET("/listener", r.handleListener)
	group.GET("/signals/:instrument", r.handleLastSignal)
	group.GET("/logs", r.handleLogs)
	if r.Entries != nil {
		group.POST("/signals", r.handleSignal)
		group.POST("/positions/amend", r.handleAmend)
	}
}

// statusFor 把错误类型映射为 HTTP 状态码。
func statusFor(err error) int {
	var canceled *okx.OrderCanceledError
	switch {
	case types.IsConflict(err):
		return http.StatusConflict
	case types.IsValidation(err):
		return http.StatusBadRequest
	case types.IsVenue(err), types.IsTransport(err), errors.As(err, &canceled):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) handlePositions(c *gin.Context) {
	states, err := r.State.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if strings.EqualFold(c.Query("active"), "true") {
		active := states[:0]
		for _, st := range states {
			if st.Active() {
				active = append(active, st)
			}
		}
		states = active
	}
	c.JSON(http.StatusOK, gin.H{"positions": states})
}

func (r *Router) handleTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	filter := gormstore.TradeFilter{
		Status:     types.TradeStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Instrument: c.Query("instrument"),
		Limit:      limit,
	}
	trades, err := r.State.ListTrades(c.Request.Context(), filter)
	if err != nil {
		logger.Errorf("[api] list trades failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (r *Router) handleTradeEvents(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := r.State.ListEvents(c.Request.Context(), orderID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (r *Router) handleListener(c *gin.Context) {
	if r.Listener == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listener disabled"})
		return
	}
	c.JSON(http.StatusOK, r.Listener.Stats())
}

func (r *Router) handleLastSignal(c *gin.Context) {
	snap, err := r.State.LastSignal(c.Request.Context(), c.Param("instrument"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no signal recorded"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleSignal(c *gin.Context) {
	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Errorf("[api] signal bind failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := req.toEntry(r.instType())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	snap := store.SignalSnapshot{
		Instrument: entry.Key.Instrument,
		Timeframe:  entry.Key.Timeframe,
		Strategy:   entry.Key.Strategy,
		Side:       string(entry.Side),
		Price:      req.Price.String(),
		ReceivedAt: time.Now(),
	}
	if err := r.State.SaveSignal(ctx, snap); err != nil {
		logger.Warnf("[api] save signal snapshot %s failed: %v", entry.Key, err)
	}
	rec, err := r.Entries.Enter(ctx, entry)
	if err != nil {
		logger.Errorf("[api] entry failed ip=%s key=%s err=%v", c.ClientIP(), entry.Key, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] entry ok ip=%s key=%s order=%s size=%s", c.ClientIP(), entry.Key, rec.OrderID, rec.Size)
	c.JSON(http.StatusOK, gin.H{"trade": rec})
}

func (r *Router) instType() string {
	if r.InstType == "" {
		return "SWAP"
	}
	return r.InstType
}

func (req SignalRequest) toEntry(instType string) (executor.EntryRequest, error) {
	side, err := types.ParseSide(req.Side)
	if err != nil {
		return executor.EntryRequest{}, err
	}
	kind := types.OrderKind(strings.ToLower(strings.TrimSpace(req.OrderType)))
	if kind == "" {
		kind = types.OrderMarket
	}
	return executor.EntryRequest{
		Key:        types.NewKey(symbol.Normalize(req.Instrument, instType), req.Timeframe, req.Strategy),
		Side:       side,
		Kind:       kind,
		Price:      req.Price,
		Size:       req.Size,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Volatility: req.Volatility,
		Leverage:   req.Leverage,
		Risk:       req.Risk,
	}, nil
}

func (r *Router) handleAmend(c *gin.Context) {
	var req AmendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := types.NewKey(symbol.Normalize(req.Instrument, r.instType()), req.Timeframe, req.Strategy)
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Leg)) {
	case "sl":
		err = r.Entries.AmendStopLoss(c.Request.Context(), key, req.Price)
	case "tp":
		err = r.Entries.AmendTakeProfit(c.Request.Context(), key, req.Price)
	default:
		err = types.Invalid("leg", "must be tp or sl, got %q", req.Leg)
	}
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] amend %s %s -> %s ip=%s", key, req.Leg, req.Price, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleLogs(c *gin.Context) {
	if r.logPath == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置日志文件"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 {
		limit = 200
	}
	lines, err := readLastLines(r.logPath, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "path": r.logPath})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": r.logPath, "lines": lines})
}

const maxLogLineSize = 1024 * 1024

func readLastLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLogLineSize)
	lines := make([]string, 0, limit)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
