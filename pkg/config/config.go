package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/landsale-go/pkg/types"
)

// Environment variable names for land sale configuration
const (
	EnvLandsaleCatalogue     = "LANDSALE_CATALOGUE"
	EnvLandsaleSaleStart     = "LANDSALE_SALE_START"
	EnvLandsaleSaleEnd       = "LANDSALE_SALE_END"
	EnvLandsaleAdmin         = "LANDSALE_ADMIN"
	EnvLandsaleRails         = "LANDSALE_RAILS"
	EnvLandsalePersistence   = "LANDSALE_PERSISTENCE"
	EnvLandsaleBadgerPath    = "LANDSALE_BADGER_PATH"
	EnvLandsaleRedisAddress  = "LANDSALE_REDIS_ADDRESS"
	EnvLandsaleRedisPassword = "LANDSALE_REDIS_PASSWORD"
	EnvLandsaleRedisDB       = "LANDSALE_REDIS_DB"
	EnvLandsaleRedisPrefix   = "LANDSALE_REDIS_PREFIX"
	EnvLandsalePort          = "LANDSALE_PORT"
	EnvLandsaleRateLimit     = "LANDSALE_PURCHASE_RATE_LIMIT"
	EnvLandsaleRateBurst     = "LANDSALE_PURCHASE_RATE_BURST"
	EnvLandsaleVerbose       = "LANDSALE_VERBOSE"
)

type PersistenceBackend string

func (p PersistenceBackend) String() string {
	return string(p)
}

const (
	PersistenceMemory PersistenceBackend = "memory"
	PersistenceBadger PersistenceBackend = "badger"
	PersistenceRedis  PersistenceBackend = "redis"
)

var supportedBackends = []string{
	string(PersistenceMemory),
	string(PersistenceBadger),
	string(PersistenceRedis),
}

// ParseRails splits a comma separated rail list, e.g. "eth,sand"
func ParseRails(s string) ([]types.PaymentRail, error) {
	var rails []types.PaymentRail
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		rail := types.PaymentRail(part)
		if !rail.IsKnown() {
			return nil, fmt.Errorf("unknown payment rail: %s", part)
		}
		rails = append(rails, rail)
	}
	return rails, nil
}

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// SaleConfig represents the complete configuration for a land sale server
type SaleConfig struct {
	// Catalogue
	CataloguePath string `json:"catalogue_path"` // JSON array of parcel records

	// Sale window, unix seconds
	SaleStart int64 `json:"sale_start"`
	SaleEnd   int64 `json:"sale_end"`

	// Admin may toggle payment rails
	AdminAddress string              `json:"admin_address"`
	EnabledRails []types.PaymentRail `json:"enabled_rails"`

	// Persistence
	Persistence PersistenceBackend `json:"persistence"`
	BadgerPath  string             `json:"badger_path"`
	Redis       RedisConfig        `json:"redis"`

	// HTTP
	Port              int     `json:"port"`
	PurchaseRateLimit float64 `json:"purchase_rate_limit"` // requests per second, 0 disables limiting
	PurchaseRateBurst int     `json:"purchase_rate_burst"`

	Verbose bool `json:"verbose"`
}

// Validate validates the land sale configuration
func (c *SaleConfig) Validate() error {
	var allErrors field.ErrorList

	if c.CataloguePath == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("cataloguePath"), "catalogue path is required"))
	}

	if c.SaleStart > c.SaleEnd {
		allErrors = append(allErrors, field.Invalid(field.NewPath("saleStart"), c.SaleStart,
			fmt.Sprintf("sale start must not be after sale end (%d)", c.SaleEnd)))
	}

	if c.AdminAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("adminAddress"), "admin address is required"))
	} else if !common.IsHexAddress(c.AdminAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("adminAddress"), c.AdminAddress, "invalid address format"))
	}

	for i, rail := range c.EnabledRails {
		if !rail.IsKnown() {
			allErrors = append(allErrors, field.NotSupported(field.NewPath("enabledRails").Index(i), rail, railNames()))
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	if c.PurchaseRateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("purchaseRateLimit"), c.PurchaseRateLimit, "must not be negative"))
	}
	if c.PurchaseRateLimit > 0 && c.PurchaseRateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("purchaseRateBurst"), c.PurchaseRateBurst, "must be at least 1 when rate limiting"))
	}

	switch c.Persistence {
	case PersistenceMemory:
	case PersistenceBadger:
		if c.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("badgerPath"), "badger path is required for badger persistence"))
		}
	case PersistenceRedis:
		if c.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "redis address is required for redis persistence"))
		}
		if c.Redis.DB < 0 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redis", "db"), c.Redis.DB, "must not be negative"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistence"), c.Persistence, supportedBackends))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// Admin returns the parsed admin address. Call after Validate.
func (c *SaleConfig) Admin() common.Address {
	return common.HexToAddress(c.AdminAddress)
}

func railNames() []string {
	names := make([]string, 0, len(types.AllRails))
	for _, r := range types.AllRails {
		names = append(names, string(r))
	}
	return names
}
