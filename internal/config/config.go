package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

const defaultConsumptionQueue = "meal.consumptions"

type Config struct {
	DBDSN            string `mapstructure:"DB_DSN"`
	Environment      string `mapstructure:"ENV"`
	AMQPURL          string `mapstructure:"AMQP_URL"`          // Пусто: события не публикуются
	ConsumptionQueue string `mapstructure:"CONSUMPTION_QUEUE"` // Очередь событий потребления
	MetricsAddr      string `mapstructure:"METRICS_ADDR"`      // Пусто: /metrics не поднимается
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Читаем напрямую из переменных окружения (после godotenv.Load они там)
	cfg := &Config{
		DBDSN:            os.Getenv("DB_DSN"),
		Environment:      os.Getenv("ENV"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		ConsumptionQueue: os.Getenv("CONSUMPTION_QUEUE"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.ConsumptionQueue == "" {
		cfg.ConsumptionQueue = defaultConsumptionQueue
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

// EventsEnabled сообщает, настроена ли публикация событий
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}
