// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Study    StudyConfig    `mapstructure:"study"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。DSN 为空时使用本地存储。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Configured 报告远程数据库是否已配置。
func (c MySQLConfig) Configured() bool {
	return strings.TrimSpace(c.DSN) != ""
}

// RedisConfig 存储 Redis 的配置。Addr 为空时使用进程内缓存。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Configured 报告 Redis 是否已配置。
func (c RedisConfig) Configured() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时消息在进程内异步写入。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// Configured 报告 Kafka 是否已配置。
func (c KafkaConfig) Configured() bool {
	return strings.TrimSpace(c.Brokers) != ""
}

// MinIOConfig 存储 MinIO 对象存储的配置，用于归档每日对话记录。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// Configured 报告对象存储是否已配置。
func (c MinIOConfig) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// LLMConfig 存储对话模型相关的配置。APIKey 为空时进入演示模式。
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// StudyConfig 存储研究流程相关的业务参数。
type StudyConfig struct {
	MaxUserMessages  int    `mapstructure:"max_user_messages"`
	MinAgentReplies  int    `mapstructure:"min_agent_replies"`
	MinStudyIDLength int    `mapstructure:"min_study_id_length"`
	StudyIDPrefix    string `mapstructure:"study_id_prefix"`
	SurveyMode       string `mapstructure:"survey_mode"`
	SurveyURL        string `mapstructure:"survey_url"`
	Timezone         string `mapstructure:"timezone"`
	LocalStorePath   string `mapstructure:"local_store_path"`
}

// Location 解析配置的时区，无法解析时回退到服务器本地时区。
func (c StudyConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// 问卷模式
const (
	SurveyModeInApp    = "in_app"
	SurveyModeExternal = "external"
)

func setDefaults(v *viper.Viper) {
	// 凭据类键需要登记空默认值，AutomaticEnv 才能在 Unmarshal 时覆盖它们
	for _, key := range []string{
		"database.mysql.dsn", "database.redis.addr", "database.redis.password",
		"jwt.secret", "kafka.brokers", "minio.endpoint", "minio.access_key_id",
		"minio.secret_access_key", "llm.api_key", "study.survey_url", "log.output_path",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("kafka.topic", "checkin-message-writes")
	v.SetDefault("kafka.group_id", "checkin-companion-writer")
	v.SetDefault("minio.bucket_name", "study-transcripts")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("study.max_user_messages", 10)
	v.SetDefault("study.min_agent_replies", 5)
	v.SetDefault("study.min_study_id_length", 5)
	v.SetDefault("study.study_id_prefix", "MH")
	v.SetDefault("study.survey_mode", SurveyModeInApp)
	v.SetDefault("study.timezone", "Local")
	v.SetDefault("study.local_store_path", "./data/research_app_data_v1.json")
}

// Load 从指定路径读取 YAML 配置，叠加环境变量后返回。
// 配置文件不存在时仅使用默认值与环境变量；文件格式错误时返回错误。
func Load(configPath string) (Config, error) {
	// .env 仅用于本地开发，缺失不是错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return c, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	c, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = c
}
