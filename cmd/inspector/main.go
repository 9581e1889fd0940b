package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"inspector/internal/abiprovider"
	"inspector/internal/analyzer"
	"inspector/internal/cache"
	"inspector/internal/chain"
	"inspector/internal/config"
	"inspector/internal/logging"
	"inspector/internal/output"
	"inspector/internal/proxy"
	"inspector/internal/state"
	"inspector/internal/validation"
)

var (
	// 基础参数
	configFile string
	blockRef   string
	outputDir  string
	format     string
	verbose    bool

	// ABI参数
	abiFile string

	// 报告参数
	textReport bool

	// 对比参数
	beforeBlock string
	afterBlock  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "inspector",
		Short: "EVM合约检查工具",
		Long:  `以太坊智能合约检查工具，支持代理结构解析、区块锚定状态快照和跨区块状态对比`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&blockRef, "block", "latest", "锚定区块（latest 或区块号）")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "输出目录（默认使用配置）")
	rootCmd.PersistentFlags().StringVar(&format, "format", "", "输出格式 (file/kafka，默认使用配置)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")

	resolveCmd := &cobra.Command{
		Use:   "resolve <address>",
		Short: "解析合约的代理结构",
		Args:  cobra.ExactArgs(1),
		RunE:  runResolve,
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot <address>",
		Short: "捕获合约的区块锚定状态快照",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshot,
	}
	snapshotCmd.Flags().StringVar(&abiFile, "abi-file", "", "本地ABI文件（跳过Etherscan获取）")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <address> [address...]",
		Short: "执行完整检查（解析+筛选+快照），多地址时批量检查",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&abiFile, "abi-file", "", "本地ABI文件（跳过Etherscan获取）")
	analyzeCmd.Flags().BoolVar(&textReport, "text", false, "以可读文本而非JSON输出报告")

	diffCmd := &cobra.Command{
		Use:   "diff <snapshot-before.json> <snapshot-after.json>",
		Short: "离线比较两个已导出的快照",
		Args:  cobra.ExactArgs(2),
		RunE:  runDiff,
	}

	compareCmd := &cobra.Command{
		Use:   "compare <address>",
		Short: "对比同一合约在两个区块的状态",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompare,
	}
	compareCmd.Flags().StringVar(&beforeBlock, "before", "", "旧区块号")
	compareCmd.Flags().StringVar(&afterBlock, "after", "latest", "新区块号")
	compareCmd.Flags().BoolVar(&textReport, "text", false, "以可读文本而非JSON输出报告")
	compareCmd.MarkFlagRequired("before")

	rootCmd.AddCommand(resolveCmd, snapshotCmd, analyzeCmd, diffCmd, compareCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

// toolkit 一次命令执行所需的全部组件
type toolkit struct {
	cfg       *config.Config
	logger    *logrus.Logger
	client    *chain.MultiNodeClient
	analyzer  *analyzer.Analyzer
	outputter output.Output
	store     *cache.Store
}

// newToolkit 加载配置并组装组件
func newToolkit() (*toolkit, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if outputDir != "" {
		cfg.Output.Directory = outputDir
	}
	if format != "" {
		cfg.Output.Format = format
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	client, err := chain.NewMultiNodeClient(cfg.Blockchain, logger)
	if err != nil {
		return nil, fmt.Errorf("创建链客户端失败: %w", err)
	}

	var store *cache.Store
	if cfg.Cache.Enabled {
		store, err = cache.NewStore(cfg.Cache.Path, logger)
		if err != nil {
			logger.Warnf("初始化缓存失败，禁用缓存: %v", err)
		}
	}

	var provider abiprovider.Provider
	if abiFile != "" {
		abiJSON, err := os.ReadFile(abiFile)
		if err != nil {
			return nil, fmt.Errorf("读取ABI文件失败: %w", err)
		}
		provider = abiprovider.NewStaticProvider(abiJSON)
	} else {
		var abiCache abiprovider.ABICache
		if store != nil {
			abiCache = store
		}
		provider = abiprovider.NewEtherscanProvider(cfg.ABI, abiCache, logger)
	}

	resolver := proxy.NewResolver(client, cfg.Resolver, logger)
	reader := state.NewReader(client, cfg.Reader, logger)

	outputter, err := output.NewOutput(cfg.Output, logger)
	if err != nil {
		return nil, fmt.Errorf("创建输出器失败: %w", err)
	}

	return &toolkit{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		analyzer:  analyzer.NewAnalyzer(client, resolver, provider, reader, store, logger),
		outputter: outputter,
		store:     store,
	}, nil
}

// close 释放组件资源
func (tk *toolkit) close() {
	tk.outputter.Close()
	if tk.store != nil {
		tk.store.Close()
	}
	tk.client.Close()
}

// printJSON 把结果打印到标准输出
func printJSON(data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonData))
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	tk, err := newToolkit()
	if err != nil {
		return err
	}
	defer tk.close()

	address, err := validation.ParseAddress(args[0])
	if err != nil {
		return err
	}
	ref, err := validation.ParseBlockRef(blockRef)
	if err != nil {
		return err
	}

	report, err := tk.analyzer.Analyze(cmd.Context(), address, ref)
	if err != nil {
		return err
	}

	if err := tk.outputter.WriteResolution(report.Resolution); err != nil {
		tk.logger.Warnf("写入解析结果失败: %v", err)
	}

	return printJSON(report.Resolution)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	tk, err := newToolkit()
	if err != nil {
		return err
	}
	defer tk.close()

	address, err := validation.ParseAddress(args[0])
	if err != nil {
		return err
	}
	ref, err := validation.ParseBlockRef(blockRef)
	if err != nil {
		return err
	}

	report, err := tk.analyzer.Analyze(cmd.Context(), address, ref)
	if err != nil {
		return err
	}

	if report.Snapshot == nil {
		return fmt.Errorf("合约 %s 无可用ABI，无法捕获快照", report.Address)
	}

	if err := tk.outputter.WriteSnapshot(report.Snapshot); err != nil {
		tk.logger.Warnf("写入快照失败: %v", err)
	}

	return printJSON(report.Snapshot)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	tk, err := newToolkit()
	if err != nil {
		return err
	}
	defer tk.close()

	addresses := make([]common.Address, 0, len(args))
	for _, arg := range args {
		address, err := validation.ParseAddress(arg)
		if err != nil {
			return err
		}
		addresses = append(addresses, address)
	}
	ref, err := validation.ParseBlockRef(blockRef)
	if err != nil {
		return err
	}

	if len(addresses) > 1 {
		batch, err := tk.analyzer.AnalyzeBatch(cmd.Context(), addresses, ref)
		if err != nil {
			return err
		}

		if err := tk.outputter.WriteBatch(batch); err != nil {
			tk.logger.Warnf("写入批量检查报告失败: %v", err)
		}

		if textReport {
			fmt.Print(output.RenderBatch(batch))
			return nil
		}
		return printJSON(batch)
	}

	report, err := tk.analyzer.Analyze(cmd.Context(), addresses[0], ref)
	if err != nil {
		return err
	}

	if err := tk.outputter.WriteReport(report); err != nil {
		tk.logger.Warnf("写入检查报告失败: %v", err)
	}

	if textReport {
		fmt.Print(output.RenderReport(report))
		return nil
	}
	return printJSON(report)
}

func runDiff(cmd *cobra.Command, args []string) error {
	// 离线比较不需要链客户端和配置
	before, err := output.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	after, err := output.LoadSnapshot(args[1])
	if err != nil {
		return err
	}

	return printJSON(state.Diff(before, after))
}

func runCompare(cmd *cobra.Command, args []string) error {
	tk, err := newToolkit()
	if err != nil {
		return err
	}
	defer tk.close()

	address, err := validation.ParseAddress(args[0])
	if err != nil {
		return err
	}
	beforeRef, err := validation.ParseBlockRef(beforeBlock)
	if err != nil {
		return err
	}
	afterRef, err := validation.ParseBlockRef(afterBlock)
	if err != nil {
		return err
	}

	comparison, err := tk.analyzer.Compare(cmd.Context(), address, beforeRef, afterRef)
	if err != nil {
		return err
	}

	if err := tk.outputter.WriteComparison(comparison); err != nil {
		tk.logger.Warnf("写入对比报告失败: %v", err)
	}

	if textReport {
		fmt.Print(output.RenderComparison(comparison))
		return nil
	}
	return printJSON(comparison)
}
