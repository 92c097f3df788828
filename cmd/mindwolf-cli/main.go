package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/qianlnk/mindwolf/config"
	"github.com/qianlnk/mindwolf/models"
	"github.com/qianlnk/mindwolf/services"
	"github.com/qianlnk/mindwolf/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. 命令行参数
	configPath := flag.String("config", "", "配置文件路径")
	players := flag.Int("players", 0, "玩家数量，默认使用配置")
	seed := flag.Int64("seed", 0, "随机种子，0 表示使用当前时间")
	auto := flag.Bool("auto", false, "真人座位由AI代打，直接模拟整局游戏")
	name := flag.String("name", "玩家", "真人玩家名字")
	logLevel := flag.String("loglevel", "warn", "日志级别 (debug, info, warn, error)")
	flag.Parse()

	// 2. 配置和日志
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	cfg.Log.Level = *logLevel
	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, ForceColors: true})

	if *players > 0 && *players != cfg.Game.TotalPlayers {
		cfg.Game.TotalPlayers = *players
		cfg.Game.RoleDistribution = nil
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	if err := run(cfg, *name, *auto, rand.New(rand.NewSource(*seed)), log); err != nil {
		if errors.Is(err, errQuit) {
			C.Info.Println("\n再见！")
			return
		}
		log.Errorf("运行失败: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, humanName string, auto bool, rng *rand.Rand, log *logrus.Logger) error {
	gameID := uuid.NewString()
	bus := services.NewEventBus()
	renderer := NewRenderer(services.HumanPlayerID, auto)
	bus.Subscribe(renderer)

	if cfg.Storage.Enabled {
		store, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		bus.Subscribe(services.NewRecorder(gameID, store, log))
	}

	game, err := services.NewGameController(gameID, services.ControllerOptions{
		Config:    cfg.Game,
		HumanName: humanName,
		AutoHuman: auto,
		Generator: config.BuildGenerator(cfg.LLM, log),
		Rng:       rng,
		NoTimers:  true,
	}, bus, log)
	if err != nil {
		return err
	}
	defer game.Stop()

	C.Header.Println("--- 狼人杀 ---")
	if err := game.StartGame(context.Background()); err != nil {
		return err
	}

	if !auto {
		line := liner.NewLiner()
		line.SetCtrlCAborts(true)
		err := promptLoop(line, game, renderer)
		line.Close()
		if err != nil {
			return err
		}
	}

	final := game.Snapshot()
	actual := make(map[string]models.Role)
	for _, p := range final.AllPlayers() {
		actual[p.ID] = p.Role
	}
	for _, report := range renderer.Reports() {
		RenderAnalysis(report, renderer.Name, actual)
	}
	return nil
}
