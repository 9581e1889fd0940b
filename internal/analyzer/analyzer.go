package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"inspector/internal/abiprovider"
	"inspector/internal/cache"
	"inspector/internal/chain"
	"inspector/internal/proxy"
	"inspector/internal/selector"
	"inspector/internal/state"
	"inspector/pkg/models"
)

// Analyzer 合约检查编排器
//
// 把代理解析、ABI获取、函数筛选和状态快照串成一次完整检查：
// ABI取自解析出的最终实现合约，调用则发往代理地址本身，
// 这样读到的才是代理的存储状态。
type Analyzer struct {
	client   chain.Client
	resolver *proxy.Resolver
	provider abiprovider.Provider
	reader   *state.Reader
	store    *cache.Store // 可为nil，此时不做结果缓存
	logger   *logrus.Logger
}

// NewAnalyzer 创建合约检查编排器
func NewAnalyzer(client chain.Client, resolver *proxy.Resolver, provider abiprovider.Provider, reader *state.Reader, store *cache.Store, logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		client:   client,
		resolver: resolver,
		provider: provider,
		reader:   reader,
		store:    store,
		logger:   logger,
	}
}

// Analyze 对合约执行一次完整检查
func (a *Analyzer) Analyze(ctx context.Context, address common.Address, ref chain.BlockReference) (*models.InspectionReport, error) {
	resolution, cached := a.cachedResolution(address, ref)
	if !cached {
		var err error
		resolution, err = a.resolver.Resolve(ctx, address, ref)
		if err != nil {
			return nil, err
		}

		if a.store != nil {
			if err := a.store.PutResolution(resolution); err != nil {
				a.logger.Warnf("缓存解析结果失败: %v", err)
			}
		}
	}

	report := &models.InspectionReport{
		Address:     resolution.Address,
		BlockNumber: resolution.ResolvedAtBlock,
		Resolution:  resolution,
		Selection:   &models.SelectionResult{},
		GeneratedAt: time.Now(),
	}

	// ABI从最终实现合约获取，代理自身通常未验证或只有转发逻辑
	abiTarget := common.HexToAddress(resolution.FinalImplementation())
	abiJSON, err := a.provider.FetchABI(ctx, abiTarget)
	if err != nil {
		return nil, err
	}

	if abiJSON == nil {
		// 无ABI时降级为只含解析结果的报告
		a.logger.WithField("address", report.Address).Info("无可用ABI，跳过状态快照")
		return report, nil
	}
	report.ABIVerified = true

	selection, err := selector.SelectFunctions(abiJSON)
	if err != nil {
		return nil, err
	}
	report.Selection = selection.Result()

	if len(selection.Plans) == 0 {
		return report, nil
	}

	snapshot, err := a.captureSnapshot(ctx, address, selection.Plans, resolution.ResolvedAtBlock)
	if err != nil {
		return nil, err
	}
	report.Snapshot = snapshot

	return report, nil
}

// batchWorkers 批量检查的并发上限
const batchWorkers = 4

// AnalyzeBatch 在同一锚定区块上批量检查多个合约
//
// 区块只锚定一次，批内所有地址读同一份链上状态；
// 单个地址失败记入对应条目，不中断其余地址。
func (a *Analyzer) AnalyzeBatch(ctx context.Context, addresses []common.Address, ref chain.BlockReference) (*models.BatchAnalysis, error) {
	pinned, err := ref.Pin(ctx, a.client)
	if err != nil {
		return nil, err
	}

	batch := &models.BatchAnalysis{
		BlockNumber: pinned,
		Entries:     make([]models.BatchEntry, len(addresses)),
		GeneratedAt: time.Now(),
	}

	workers := batchWorkers
	if len(addresses) < workers {
		workers = len(addresses)
	}

	taskChan := make(chan int, len(addresses))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				address := addresses[idx]
				entry := models.BatchEntry{Address: models.CanonicalAddress(address)}

				report, err := a.Analyze(ctx, address, chain.BlockRef(pinned))
				if err != nil {
					entry.Error = err.Error()
					a.logger.WithFields(logrus.Fields{
						"address": entry.Address,
						"block":   pinned,
					}).Warnf("批量检查失败: %v", err)
				} else {
					entry.Report = report
				}
				batch.Entries[idx] = entry
			}
		}()
	}

	for idx := range addresses {
		taskChan <- idx
	}
	close(taskChan)
	wg.Wait()

	for _, entry := range batch.Entries {
		if entry.Error != "" {
			batch.FailureCount++
		} else {
			batch.SuccessCount++
		}
	}

	return batch, nil
}

// cachedResolution 查找已缓存的代理解析结果
//
// 只有锚定到具体区块号的引用才可复用缓存，latest引用每次都重新解析。
func (a *Analyzer) cachedResolution(address common.Address, ref chain.BlockReference) (*models.ProxyResolution, bool) {
	if a.store == nil {
		return nil, false
	}
	blockNumber, ok := ref.Number()
	if !ok {
		return nil, false
	}
	resolution, ok := a.store.GetResolution(models.CanonicalAddress(address), blockNumber)
	if !ok {
		return nil, false
	}
	a.logger.WithFields(logrus.Fields{
		"address": resolution.Address,
		"block":   blockNumber,
	}).Debug("解析缓存命中")
	return resolution, true
}

// captureSnapshot 捕获快照，带缓存检查
func (a *Analyzer) captureSnapshot(ctx context.Context, address common.Address, plans []selector.CallPlan, blockNumber uint64) (*models.StateSnapshot, error) {
	canonical := models.CanonicalAddress(address)

	if a.store != nil {
		if cached, ok := a.store.GetSnapshot(canonical, blockNumber); ok {
			a.logger.WithFields(logrus.Fields{
				"address": canonical,
				"block":   blockNumber,
			}).Debug("快照缓存命中")
			return cached, nil
		}
	}

	snapshot, err := a.reader.CaptureSnapshot(ctx, address, plans, chain.BlockRef(blockNumber))
	if err != nil {
		return nil, err
	}

	if a.store != nil {
		if err := a.store.PutSnapshot(snapshot); err != nil {
			a.logger.Warnf("缓存快照失败: %v", err)
		}
	}

	return snapshot, nil
}

// Compare 对比同一合约在两个区块的状态
//
// 两个区块各执行一次完整检查后比较快照，并检查
// 实现地址是否在两个区块之间发生了升级。
func (a *Analyzer) Compare(ctx context.Context, address common.Address, before, after chain.BlockReference) (*models.ComparisonReport, error) {
	beforeReport, err := a.Analyze(ctx, address, before)
	if err != nil {
		return nil, err
	}

	afterReport, err := a.Analyze(ctx, address, after)
	if err != nil {
		return nil, err
	}

	comparison := &models.ComparisonReport{
		Address:     beforeReport.Address,
		BlockBefore: beforeReport.BlockNumber,
		BlockAfter:  afterReport.BlockNumber,
		GeneratedAt: time.Now(),
	}

	implBefore := beforeReport.Resolution.FinalImplementation()
	implAfter := afterReport.Resolution.FinalImplementation()
	if !models.SameAddress(implBefore, implAfter) {
		comparison.ImplementationBefore = implBefore
		comparison.ImplementationAfter = implAfter
		comparison.Upgraded = true
		a.logger.WithFields(logrus.Fields{
			"address": comparison.Address,
			"before":  implBefore,
			"after":   implAfter,
		}).Info("检测到代理实现升级")
	}

	if beforeReport.Snapshot != nil && afterReport.Snapshot != nil {
		comparison.Diff = state.Diff(beforeReport.Snapshot, afterReport.Snapshot)
	}

	return comparison, nil
}
