// Package config loads the gateway's runtime configuration, grounded
// on the teacher's flag-plus-environment-variable Load() (same
// override order: environment first, flags take precedence), adapted
// to the IP gateway's configuration block instead of a WiFi scanner's.
package config

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// RFRegion enumerates the radio regions the spec's configuration block
// allows.
type RFRegion int

const (
	RegionEU RFRegion = iota
	RegionUS
	RegionANZ
	RegionHK
	RegionIN
	RegionIL
	RegionRU
	RegionCN
	RegionUSLR
	RegionJP
	RegionKR
)

var regionNames = map[string]RFRegion{
	"EU": RegionEU, "US": RegionUS, "ANZ": RegionANZ, "HK": RegionHK,
	"IN": RegionIN, "IL": RegionIL, "RU": RegionRU, "CN": RegionCN,
	"US_LR": RegionUSLR, "JP": RegionJP, "KR": RegionKR,
}

func (r RFRegion) String() string {
	for name, v := range regionNames {
		if v == r {
			return name
		}
	}
	return "EU"
}

func parseRegion(s string) RFRegion {
	if r, ok := regionNames[strings.ToUpper(s)]; ok {
		return r
	}
	return RegionEU
}

// Config mirrors the gateway configuration block: network addressing,
// the PAN security key material, the controller's NIF identity, and
// the radio tuning knobs.
type Config struct {
	HTTPAddr string
	GRPCPort int
	DBPath   string
	Debug    bool

	PanPrefix       net.IP
	LANAddr         net.IP
	TunPrefix       net.IP
	TunPrefixLength int
	GWAddr          net.IP

	UnsolicitedDest string
	UnsolicitedPort int

	PSK           []byte
	ClientKeySize int

	ManufacturerID uint16
	ProductType    uint16
	ProductID      uint16
	HardwareVer    byte

	RFRegion          RFRegion
	TxPowerlevel      int
	MaxLRTxPowerlevel int
	ZWLBT             int

	ExtraClasses    []byte
	SecExtraClasses []byte

	EnableSmartStart bool
	IPv4Disable      bool
	ClearEEPROM      bool
}

// Load parses command line flags and environment variables to
// populate Config. Flags take precedence over environment variables,
// matching the teacher's override order.
func Load() *Config {
	cfg := &Config{}

	cfg.HTTPAddr = getEnv("ZIPGW_ADDR", ":8080")
	cfg.GRPCPort = int(getEnvInt("ZIPGW_GRPC", 9000))
	cfg.DBPath = getEnv("ZIPGW_DB", "zipgw.db")

	panPrefixStr := getEnv("ZIPGW_PAN_PREFIX", "fd00:aaaa::")
	lanAddrStr := getEnv("ZIPGW_LAN_ADDR", "fd00:bbbb::1")
	tunPrefixStr := getEnv("ZIPGW_TUN_PREFIX", "fd00:cccc::")
	gwAddrStr := getEnv("ZIPGW_GW_ADDR", "fd00:bbbb::2")
	unsolicitedDest := getEnv("ZIPGW_UNSOLICITED_DEST", "")
	unsolicitedPort := int(getEnvInt("ZIPGW_UNSOLICITED_PORT", 4123))
	pskHex := getEnv("ZIPGW_PSK", "")
	clientKeySize := int(getEnvInt("ZIPGW_CLIENT_KEY_SIZE", 16))
	manufacturerID := int(getEnvInt("ZIPGW_MANUFACTURER_ID", 0))
	productType := int(getEnvInt("ZIPGW_PRODUCT_TYPE", 0))
	productID := int(getEnvInt("ZIPGW_PRODUCT_ID", 0))
	hardwareVer := int(getEnvInt("ZIPGW_HARDWARE_VERSION", 1))
	rfregion := getEnv("ZIPGW_RFREGION", "EU")
	txPowerlevel := int(getEnvInt("ZIPGW_TX_POWERLEVEL", 0))
	maxLRTxPowerlevel := int(getEnvInt("ZIPGW_MAX_LR_TX_POWERLEVEL", 0))
	zwLBT := int(getEnvInt("ZIPGW_ZW_LBT", 64))
	enableSmartStart := getEnvBool("ZIPGW_ENABLE_SMART_START", true)
	ipv4Disable := getEnvBool("ZIPGW_IPV4_DISABLE", false)
	tunPrefixLength := int(getEnvInt("ZIPGW_TUN_PREFIX_LENGTH", 64))

	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP diagnostics server address")
	flag.IntVar(&cfg.GRPCPort, "grpc", cfg.GRPCPort, "gRPC health server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")

	flag.StringVar(&panPrefixStr, "pan-prefix", panPrefixStr, "PAN IPv6 prefix")
	flag.StringVar(&lanAddrStr, "lan-addr", lanAddrStr, "Gateway LAN IPv6 address")
	flag.StringVar(&tunPrefixStr, "tun-prefix", tunPrefixStr, "Tunnel IPv6 prefix")
	flag.IntVar(&tunPrefixLength, "tun-prefix-length", tunPrefixLength, "Tunnel IPv6 prefix length")
	flag.StringVar(&gwAddrStr, "gw-addr", gwAddrStr, "Gateway tunnel IPv6 address")
	flag.StringVar(&unsolicitedDest, "unsolicited-dest", unsolicitedDest, "Unsolicited destination host")
	flag.IntVar(&unsolicitedPort, "unsolicited-port", unsolicitedPort, "Unsolicited destination port")
	flag.StringVar(&pskHex, "psk", pskHex, "Pre-shared key, hex encoded (up to 32 bytes)")
	flag.IntVar(&clientKeySize, "client-key-size", clientKeySize, "Client key size in bytes")
	flag.IntVar(&manufacturerID, "manufacturer-id", manufacturerID, "Manufacturer ID")
	flag.IntVar(&productType, "product-type", productType, "Product type")
	flag.IntVar(&productID, "product-id", productID, "Product ID")
	flag.IntVar(&hardwareVer, "hardware-version", hardwareVer, "Hardware version")
	flag.StringVar(&rfregion, "rfregion", rfregion, "RF region (EU, US, ANZ, HK, IN, IL, RU, CN, US_LR, JP, KR)")
	flag.IntVar(&txPowerlevel, "tx-powerlevel", txPowerlevel, "TX power level")
	flag.IntVar(&maxLRTxPowerlevel, "max-lr-tx-powerlevel", maxLRTxPowerlevel, "Max long-range TX power level")
	flag.IntVar(&zwLBT, "zw-lbt", zwLBT, "Listen-before-talk threshold")
	flag.BoolVar(&enableSmartStart, "enable-smart-start", enableSmartStart, "Enable Smart Start inclusion")
	flag.BoolVar(&ipv4Disable, "ipv4-disable", ipv4Disable, "Disable the IPv4-mapped NAT table")
	flag.BoolVar(&cfg.ClearEEPROM, "clear-eeprom", false, "Clear controller EEPROM on startup")

	flag.Parse()

	cfg.PanPrefix = parseIP(panPrefixStr)
	cfg.LANAddr = parseIP(lanAddrStr)
	cfg.TunPrefix = parseIP(tunPrefixStr)
	cfg.TunPrefixLength = tunPrefixLength
	cfg.GWAddr = parseIP(gwAddrStr)
	cfg.UnsolicitedDest = unsolicitedDest
	cfg.UnsolicitedPort = unsolicitedPort
	cfg.ClientKeySize = clientKeySize
	cfg.ManufacturerID = uint16(manufacturerID)
	cfg.ProductType = uint16(productType)
	cfg.ProductID = uint16(productID)
	cfg.HardwareVer = byte(hardwareVer)
	cfg.RFRegion = parseRegion(rfregion)
	cfg.TxPowerlevel = txPowerlevel
	cfg.MaxLRTxPowerlevel = maxLRTxPowerlevel
	cfg.ZWLBT = zwLBT
	cfg.EnableSmartStart = enableSmartStart
	cfg.IPv4Disable = ipv4Disable

	if pskHex != "" {
		psk, err := hex.DecodeString(pskHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: invalid -psk hex value, ignoring: %v\n", err)
		} else {
			cfg.PSK = psk
		}
	}

	return cfg
}

func parseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return net.IPv6unspecified
	}
	return ip
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
