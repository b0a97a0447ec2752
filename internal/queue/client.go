package queue

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/expertmarket/settlement/internal/config"
	"github.com/expertmarket/settlement/internal/constants"

	"github.com/hibiken/asynq"
)

// DefaultQueue 默认队列名称
const DefaultQueue = constants.QueueDefault

// Client 包装 asynq 的任务投递端。队列未启用时投递方法全部空转，
// 结算落账改走同步路径与进程内扫描兜底。
type Client struct {
	client       *asynq.Client
	defaultQueue string
}

// NewClient 创建队列客户端。
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	c := &Client{defaultQueue: DefaultQueue}
	if cfg != nil && cfg.Enabled {
		c.client = asynq.NewClient(buildRedisOpt(cfg))
	}
	return c, nil
}

// Enabled 队列是否可用。
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close 关闭投递端连接。
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// EnqueueSettlementReconcile 推送后置结算任务
// MaxRetry 放大确保支付成功后的账务最终落地，失败只重试不回滚
func (c *Client) EnqueueSettlementReconcile(payload SettlementReconcilePayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewSettlementReconcileTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{asynq.Queue(c.defaultQueue), asynq.MaxRetry(20)}, opts...)
	_, err = c.client.Enqueue(task, options...)
	return err
}

// EnqueueEscrowExpirySweep 推送托管到期清理任务
func (c *Client) EnqueueEscrowExpirySweep(payload EscrowExpirySweepPayload, opts ...asynq.Option) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewEscrowExpirySweepTask(payload)
	if err != nil {
		return err
	}
	options := append([]asynq.Option{asynq.Queue(c.defaultQueue)}, opts...)
	_, err = c.client.Enqueue(task, options...)
	return err
}

// EnqueuePaymentQuery 推送支付结果轮询任务
func (c *Client) EnqueuePaymentQuery(payload PaymentQueryPayload, delay time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	task, err := NewPaymentQueryTask(payload)
	if err != nil {
		return err
	}
	options := []asynq.Option{asynq.Queue(c.defaultQueue), asynq.ProcessIn(delay)}
	_, err = c.client.Enqueue(task, options...)
	return err
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{DefaultQueue: 1}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{Addr: net.JoinHostPort("127.0.0.1", "6379")}
	if cfg == nil {
		return opt
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	opt.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	opt.Password = cfg.Password
	opt.DB = cfg.DB
	return opt
}
