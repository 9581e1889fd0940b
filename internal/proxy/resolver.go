package proxy

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"inspector/internal/chain"
	"inspector/internal/config"
	ierrors "inspector/internal/errors"
	"inspector/pkg/models"
)

// DefaultMaxDepth 代理链默认最大递归深度
const DefaultMaxDepth = 4

// Resolver 代理解析器
//
// 协调字节码匹配与存储槽探测，对解析出的实现地址在同一
// 锚定区块递归解析，以发现代理指向代理的链式结构。
type Resolver struct {
	client   chain.Client
	prober   *SlotProber
	maxDepth int
	timeout  time.Duration
	logger   *logrus.Entry
}

// NewResolver 创建代理解析器
//
// cfg.Timeout限制整次解析（含链式递归）的总时长，
// 为空或非法时不限制。
func NewResolver(client chain.Client, cfg *config.ResolverConfig, logger *logrus.Logger) *Resolver {
	maxDepth := DefaultMaxDepth
	var timeout time.Duration
	if cfg != nil {
		if cfg.MaxDepth > 0 {
			maxDepth = cfg.MaxDepth
		}
		if cfg.Timeout != "" {
			parsed, err := time.ParseDuration(cfg.Timeout)
			if err != nil || parsed <= 0 {
				logger.Warnf("解析超时配置非法，不限制解析时长: %v", err)
			} else {
				timeout = parsed
			}
		}
	}

	return &Resolver{
		client:   client,
		prober:   NewSlotProber(client, logger),
		maxDepth: maxDepth,
		timeout:  timeout,
		logger:   logger.WithField("component", "proxy_resolver"),
	}
}

// hopResult 单跳解析结论
type hopResult struct {
	standard       models.ProxyStandard
	implementation *common.Address
	admin          *common.Address
	beacon         *common.Address
	confidence     models.Confidence
}

// Resolve 解析目标地址的代理结构
//
// 区块引用只在入口处锚定一次，链上所有后续读取复用同一个
// 区块号。目标合约自身字节码不可获取是唯一的致命错误；
// 递归过程中某一跳失败只会截断解析链。
func (r *Resolver) Resolve(ctx context.Context, address common.Address, ref chain.BlockReference) (*models.ProxyResolution, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	pinned, err := ref.Pin(ctx, r.client)
	if err != nil {
		return nil, err
	}

	r.logger.Debugf("解析 %s @ 区块 %d", address.Hex(), pinned)

	first, err := r.resolveHop(ctx, address, pinned)
	if err != nil {
		return nil, err
	}

	resolution := &models.ProxyResolution{
		Address:         models.CanonicalAddress(address),
		Standard:        first.standard,
		Confidence:      first.confidence,
		ResolvedAtBlock: pinned,
		ResolvedAt:      time.Now(),
	}
	if first.admin != nil {
		resolution.AdminAddress = models.CanonicalAddress(*first.admin)
	}
	if first.beacon != nil {
		resolution.BeaconAddress = models.CanonicalAddress(*first.beacon)
	}

	// 实现地址只在置信度不低于Medium时对外暴露
	if first.implementation != nil && first.confidence.AtLeast(models.ConfidenceMedium) {
		resolution.ImplementationAddress = models.CanonicalAddress(*first.implementation)
	}

	resolution.Chain = r.walkChain(ctx, address, first, pinned)

	return resolution, nil
}

// walkChain 沿实现地址递归，构建完整解析链
//
// 显式的有界循环加已访问集合：深度上限防止病态长链，
// 访问集合在代理互指时检测环并停止。
func (r *Resolver) walkChain(ctx context.Context, address common.Address, first *hopResult, pinned uint64) []models.ResolutionHop {
	visited := map[common.Address]bool{address: true}
	hops := []models.ResolutionHop{makeHop(address, first)}

	current := first
	for depth := 1; depth < r.maxDepth; depth++ {
		if current.implementation == nil || !current.confidence.AtLeast(models.ConfidenceMedium) {
			break
		}

		next := *current.implementation
		if visited[next] {
			r.logger.Warnf("检测到代理环: %s 已在解析链中", next.Hex())
			break
		}
		visited[next] = true

		hop, err := r.resolveHop(ctx, next, pinned)
		if err != nil {
			// 递归跳的失败截断链式解析，已得证据保留
			r.logger.Warnf("解析链在 %s 处中断: %v", next.Hex(), err)
			break
		}

		hops = append(hops, makeHop(next, hop))

		if hop.standard == models.StandardUnknown {
			break
		}
		current = hop
	}

	return hops
}

// resolveHop 对单个地址做一次完整的证据收集与归并
func (r *Resolver) resolveHop(ctx context.Context, address common.Address, pinned uint64) (*hopResult, error) {
	bytecode, err := r.client.GetCode(ctx, address, pinned)
	if err != nil {
		return nil, ierrors.WrapError(err, ierrors.ErrorTypeResolution, ierrors.SeverityHigh,
			"CODE_UNAVAILABLE", "无法获取目标合约字节码").
			WithAddress(models.CanonicalAddress(address)).
			WithBlockNumber(pinned)
	}

	// 无字节码的地址（EOA或已自毁）是确定的非代理
	if len(bytecode) == 0 {
		return &hopResult{
			standard:   models.StandardUnknown,
			confidence: models.ConfidenceHigh,
		}, nil
	}

	candidates := MatchBytecode(bytecode)

	// 存储槽无条件全量探测：透明代理在字节码上不可辨识，
	// 槽位读数是比字节码启发式更强的依据
	slotEvidence := r.prober.ProbeAll(ctx, address, pinned)

	return reconcile(candidates, slotEvidence), nil
}

// reconcile 归并字节码证据与存储槽证据
//
// 优先级规则：槽位读数 > 字节码模板 > 启发式。槽读数是链上
// 实际状态，字节码匹配只是模式推断，两者冲突时以槽为准。
// 两类证据都缺失时"非代理"本身就是高置信度结论。
func reconcile(candidates []Candidate, slotEvidence map[models.ProxyStandard]SlotEvidence) *hopResult {
	// 按标准优先顺序取第一个槽证据
	for _, entry := range slotStandards {
		ev, ok := slotEvidence[entry.Standard]
		if !ok {
			continue
		}

		impl := ev.Implementation
		return &hopResult{
			standard:       ev.Standard,
			implementation: &impl,
			admin:          ev.Admin,
			beacon:         ev.Beacon,
			confidence:     ev.Confidence,
		}
	}

	// 无槽证据时采用字节码证据，候选已按特异性排序
	for _, cand := range candidates {
		if cand.Standard == models.StandardMinimalProxyClone {
			return &hopResult{
				standard:       cand.Standard,
				implementation: cand.Implementation,
				confidence:     cand.Confidence,
			}
		}
	}

	// 仅有DELEGATECALL启发式：疑似代理但无法定位实现，
	// 按设计归为Unknown而不是猜测一个标准
	if len(candidates) > 0 {
		return &hopResult{
			standard:   models.StandardUnknown,
			confidence: models.ConfidenceLow,
		}
	}

	return &hopResult{
		standard:   models.StandardUnknown,
		confidence: models.ConfidenceHigh,
	}
}

// makeHop 构造解析链中的一跳记录
func makeHop(address common.Address, result *hopResult) models.ResolutionHop {
	hop := models.ResolutionHop{
		Address:    models.CanonicalAddress(address),
		Standard:   result.standard,
		Confidence: result.confidence,
	}
	if result.implementation != nil && result.confidence.AtLeast(models.ConfidenceMedium) {
		hop.Implementation = models.CanonicalAddress(*result.implementation)
	}
	return hop
}
