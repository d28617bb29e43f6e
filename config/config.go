package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	MinIOBucket  string        `yaml:"minio_bucket"`
	App          App           `yaml:"app"`
	DB           *sql.DB       `yaml:"db"`
	Queue        *RabbitMQ     `yaml:"rabbitmq"`
	Storage      *minio.Client `yaml:"storage"`
	Server       Server        `yaml:"server"`
	Pipeline     Pipeline      `yaml:"pipeline"`
	Intelligence Intelligence  `yaml:"intelligence"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

// Pipeline controls how a video is split into units and how those units are
// fanned out to the media providers.
type Pipeline struct {
	ChunkLengthSeconds int           `yaml:"chunk_length_seconds"`
	OverlapSeconds     int           `yaml:"overlap_seconds"`
	FrameSampleCount   int           `yaml:"frame_sample_count"`
	Concurrency        int           `yaml:"concurrency"`
	ProviderTimeout    time.Duration `yaml:"provider_timeout"`
}

type Intelligence struct {
	GroqAPIKey      string `yaml:"groq_api_key"`
	GroqBaseURL     string `yaml:"groq_base_url"`
	TranscriptModel string `yaml:"transcript_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	TextEmbedModel  string `yaml:"text_embed_model"`
	TextEmbedDim    int    `yaml:"text_embed_dim"`
	ImageEmbedURL   string `yaml:"image_embed_url"`
	ImageEmbedModel string `yaml:"image_embed_model"`
	ImageEmbedDim   int    `yaml:"image_embed_dim"`
	CaptionModel    string `yaml:"caption_model"`
	CaptionPrompt   string `yaml:"caption_prompt"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("pipeline.chunk_length_seconds", 10)
	viper.SetDefault("pipeline.overlap_seconds", 1)
	viper.SetDefault("pipeline.frame_sample_count", 45)
	viper.SetDefault("pipeline.concurrency", 5)
	viper.SetDefault("pipeline.provider_timeout_seconds", 60)
	viper.SetDefault("intelligence.groq_base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("intelligence.transcript_model", "whisper-large-v3-turbo")
	viper.SetDefault("intelligence.text_embed_model", "text-embedding-3-small")
	viper.SetDefault("intelligence.text_embed_dim", 1536)
	viper.SetDefault("intelligence.image_embed_model", "clip-vit-base-patch32")
	viper.SetDefault("intelligence.image_embed_dim", 512)
	viper.SetDefault("intelligence.caption_model", "gpt-4o-mini")
	viper.SetDefault("intelligence.caption_prompt", "Describe what is happening in the image")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: viper.GetString("rabbitmq_host"),
		Port: viper.GetInt("rabbitmq_port"),
		User: viper.GetString("rabbitmq_user"),
		Pass: viper.GetString("rabbitmq_pass"),
		Kind: viper.GetString("rabbitmq_kind"),
	}

	minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
		Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	return &Config{
		MinIOBucket: viper.GetString("minio.bucket"),
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
			Workers:  viper.GetInt("server.workers"),
		},
		Pipeline: Pipeline{
			ChunkLengthSeconds: viper.GetInt("pipeline.chunk_length_seconds"),
			OverlapSeconds:     viper.GetInt("pipeline.overlap_seconds"),
			FrameSampleCount:   viper.GetInt("pipeline.frame_sample_count"),
			Concurrency:        viper.GetInt("pipeline.concurrency"),
			ProviderTimeout:    time.Duration(viper.GetInt("pipeline.provider_timeout_seconds")) * time.Second,
		},
		Intelligence: Intelligence{
			GroqAPIKey:      viper.GetString("intelligence.groq_api_key"),
			GroqBaseURL:     viper.GetString("intelligence.groq_base_url"),
			TranscriptModel: viper.GetString("intelligence.transcript_model"),
			OpenAIAPIKey:    viper.GetString("intelligence.openai_api_key"),
			TextEmbedModel:  viper.GetString("intelligence.text_embed_model"),
			TextEmbedDim:    viper.GetInt("intelligence.text_embed_dim"),
			ImageEmbedURL:   viper.GetString("intelligence.image_embed_url"),
			ImageEmbedModel: viper.GetString("intelligence.image_embed_model"),
			ImageEmbedDim:   viper.GetInt("intelligence.image_embed_dim"),
			CaptionModel:    viper.GetString("intelligence.caption_model"),
			CaptionPrompt:   viper.GetString("intelligence.caption_prompt"),
		},
		DB:      db,
		Queue:   rabbitmq,
		Storage: minioClient,
	}, nil
}
