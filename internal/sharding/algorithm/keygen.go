package algorithm

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	base "github.com/meoying/dbkernel/internal/algorithm"
	"github.com/meoying/dbkernel/internal/errs"
)

const (
	TypeSnowflake = "SNOWFLAKE"
	TypeUUID      = "UUID"
)

// KeyGenerator 分布式主键生成器
type KeyGenerator interface {
	Type() string
	Generate() (any, error)
}

var KeyGenerators = func() *base.Registry[KeyGenerator] {
	r := base.NewRegistry[KeyGenerator]("key-generate")
	r.Register(TypeSnowflake, NewSnowflake)
	r.Register(TypeUUID, NewUUID)
	return r
}()

const (
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = 1<<workerIDBits - 1
	sequenceMask   = 1<<sequenceBits - 1
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// snowflakeEpoch 2016-11-01 00:00:00 UTC
var snowflakeEpoch = time.Date(2016, time.November, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// Snowflake 41 位毫秒时间戳，10 位工作节点，12 位序列号
type Snowflake struct {
	mu            sync.Mutex
	workerID      int64
	maxTolerateMs int64
	lastMs        int64
	sequence      int64
	now           func() time.Time
	sleep         func(d time.Duration)
}

func NewSnowflake(props *base.Props) (KeyGenerator, error) {
	workerID, err := props.Int64("worker-id", 0)
	if err != nil {
		return nil, err
	}
	if workerID < 0 || workerID > maxWorkerID {
		return nil, errs.NewInvalidConfigError("SNOWFLAKE 的 worker-id 必须在 [0, %d] 之间", maxWorkerID)
	}
	tolerate, err := props.Int64("max-tolerate-time-difference-milliseconds", 10)
	if err != nil {
		return nil, err
	}
	return &Snowflake{
		workerID:      workerID,
		maxTolerateMs: tolerate,
		now:           time.Now,
		sleep:         time.Sleep,
	}, nil
}

func (*Snowflake) Type() string {
	return TypeSnowflake
}

func (s *Snowflake) Generate() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms < s.lastMs {
		diff := s.lastMs - ms
		if diff > s.maxTolerateMs {
			return nil, errs.NewUnsupportedOperationError("SNOWFLAKE 生成主键", "时钟回拨超过了允许的范围")
		}
		s.sleep(time.Duration(diff) * time.Millisecond)
		ms = s.lastMs
	}
	if ms == s.lastMs {
		s.sequence = (s.sequence + 1) & sequenceMask
		if s.sequence == 0 {
			for ms <= s.lastMs {
				s.sleep(time.Millisecond)
				ms = s.now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.lastMs = ms
	return (ms-snowflakeEpoch)<<timestampShift | s.workerID<<workerIDShift | s.sequence, nil
}

type UUID struct{}

func NewUUID(*base.Props) (KeyGenerator, error) {
	return UUID{}, nil
}

func (UUID) Type() string {
	return TypeUUID
}

func (UUID) Generate() (any, error) {
	return strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}
