package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	DuelResult   string `mapstructure:"duel_result"`
	RewardResult string `mapstructure:"reward_result"`
}

// BusinessConfig 业务参数
type BusinessConfig struct {
	// 账务
	TxMaxAttempts     int `mapstructure:"tx_max_attempts"`     // 乐观锁冲突重试次数上限
	IdemRetentionDays int `mapstructure:"idem_retention_days"` // 幂等键保留天数
	MaxRetryCount     int `mapstructure:"max_retry_count"`     // 消息发送重试上限

	// 对局
	RakePercent       int64 `mapstructure:"rake_percent"`         // 抽水百分比
	RoundWinsToFinish int   `mapstructure:"round_wins_to_finish"` // 先赢几小局获胜
	HandSize          int   `mapstructure:"hand_size"`            // 卡牌对决手牌数
	CardMaxValue      int   `mapstructure:"card_max_value"`       // 牌面最大点数
	BoostCost         int64 `mapstructure:"boost_cost"`           // 加成技能价格
	BoostBonus        int   `mapstructure:"boost_bonus"`          // 加成点数
	RerollCost        int64 `mapstructure:"reroll_cost"`          // 换牌技能价格
	TimerMinSeconds   int   `mapstructure:"timer_min_seconds"`    // 计时对决停止点下界
	TimerMaxSeconds   int   `mapstructure:"timer_max_seconds"`    // 计时对决停止点上界

	// 清扫任务
	JanitorIntervalSeconds int `mapstructure:"janitor_interval_seconds"` // 巡检周期
	StaleMatchMinutes      int `mapstructure:"stale_match_minutes"`      // 对局无进展判死阈值
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
