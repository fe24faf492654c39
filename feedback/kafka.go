package feedback

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rushteam/phoenix/core"
	"github.com/rushteam/phoenix/pkg/log"
)

// KafkaConfig 是 Kafka 发布器配置
type KafkaConfig struct {
	// Kafka 配置
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// 性能配置
	BatchSize     int           `yaml:"batch_size"`     // 批量大小（建议 100-1000）
	FlushInterval time.Duration `yaml:"flush_interval"` // 刷新间隔（建议 1-5 秒）
	// MaxBuffer 是缓冲上限，超过后丢弃新事件
	MaxBuffer int `yaml:"max_buffer"`

	// Kafka 客户端配置
	ClientID     string `yaml:"client_id"`
	RequiredAcks int16  `yaml:"required_acks"` // 需要的 ACK 数量（1=leader, -1=all）
	Compression  string `yaml:"compression"`   // 压缩类型（gzip, snappy, lz4, zstd）
	MaxRetries   int    `yaml:"max_retries"`
}

func (c *KafkaConfig) withDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MaxBuffer <= 0 {
		c.MaxBuffer = 100 * c.BatchSize
	}
	if c.ClientID == "" {
		c.ClientID = "phoenix-feedback"
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// producer 是 kgo.Client 中用到的部分
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaPublisher 缓冲事件并批量异步发送到 Kafka。
// 同一用户的事件使用 user_id 作为 key，保证分区内有序。
type KafkaPublisher struct {
	client        producer
	topic         string
	batchSize     int
	maxBuffer     int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []*Event
	closed bool

	sent    atomic.Int64
	dropped atomic.Int64

	kick      chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	cfg.withDefaults()

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RecordRetries(cfg.MaxRetries),
	}

	switch cfg.RequiredAcks {
	case -1:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	default:
		// 幂等写要求 acks=all，leader ack 时关闭
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}

	switch cfg.Compression {
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable, "create kafka client: "+err.Error())
	}
	return newKafkaPublisher(client, cfg), nil
}

func newKafkaPublisher(client producer, cfg KafkaConfig) *KafkaPublisher {
	cfg.withDefaults()
	p := &KafkaPublisher{
		client:        client,
		topic:         cfg.Topic,
		batchSize:     cfg.BatchSize,
		maxBuffer:     cfg.MaxBuffer,
		flushInterval: cfg.FlushInterval,
		buffer:        make([]*Event, 0, cfg.BatchSize),
		kick:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
	p.wg.Add(1)
	go p.flushLoop()
	return p
}

// RecordRanking 异步记录排序结果（不阻塞）
func (p *KafkaPublisher) RecordRanking(_ context.Context, req *core.RankingRequest, resp *core.RankingResponse) error {
	events := BuildEvents(req, resp, time.Now())
	if len(events) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if room := p.maxBuffer - len(p.buffer); room < len(events) {
		if room < 0 {
			room = 0
		}
		p.dropped.Add(int64(len(events) - room))
		events = events[:room]
	}
	p.buffer = append(p.buffer, events...)

	// 达到批量大小，通知后台发送
	if len(p.buffer) >= p.batchSize {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Stats 返回已发送与丢弃的事件数
func (p *KafkaPublisher) Stats() (sent, dropped int64) {
	return p.sent.Load(), p.dropped.Load()
}

// flushLoop 定时刷新循环
func (p *KafkaPublisher) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.kick:
			p.flush()
		case <-p.stopCh:
			return
		}
	}
}

// flush 取出缓冲并交给 Kafka 客户端异步发送
func (p *KafkaPublisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	events := p.buffer
	p.buffer = make([]*Event, 0, p.batchSize)
	p.mu.Unlock()

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			p.dropped.Add(1)
			log.Warnf("feedback: encode event for post %s: %v", ev.PostID, err)
			continue
		}
		record := &kgo.Record{
			Topic: p.topic,
			Key:   []byte(ev.UserID),
			Value: data,
		}
		p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
			if err != nil {
				p.dropped.Add(1)
				log.Warnf("feedback: produce to %s failed: %v", p.topic, err)
				return
			}
			p.sent.Add(1)
		})
	}
}

// Close 优雅关闭（等待缓冲数据发送完成）
func (p *KafkaPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.stopCh)
		p.wg.Wait()

		// 最后一次刷新
		p.flush()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = p.client.Flush(ctx)
		p.client.Close()
	})
	return err
}

var _ Publisher = (*KafkaPublisher)(nil)
