/*
Package config implements the type to pass the arguments to the node
and implements a function to load the parameters from a configuration file.
*/
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/gitzhang10/alephdag/sign"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config defines a type to describe the configuration.
type Config struct {
	Name            string
	Index           int // 1-based threshold key index
	MaxPool         int
	LogLevel        int
	Rounds          int // the number of units the node creates
	BatchSize       int // transactions carried by each unit
	SyncLag         uint64
	SyncWindow      uint64
	PollInterval    time.Duration
	QuorumTimeout   time.Duration
	RejectByzantine bool
	CoinCacheSize   int
	MetricsAddr     string // empty disables the metrics endpoint

	ClusterPort          map[string]int    // map from name to port
	ClusterIndex         map[string]int    // map from name to threshold key index
	ClusterAddrWithPorts map[string]string // map from name to addr:port

	PublicKeyMap map[string]ed25519.PublicKey
	PrivateKey   ed25519.PrivateKey
	TsPublicKey  *sign.VerificationKey
	TsPrivateKey *sign.SecretKey
}

// LoadConfig loads the configuration file configName from the working directory by package viper.
// viperConfig may carry bound command line flags, which override the file; nil starts from scratch.
func LoadConfig(viperConfig *viper.Viper, configPrefix, configName string) (*Config, error) {
	if viperConfig == nil {
		viperConfig = viper.New()
	}
	setupEnv(viperConfig, configPrefix)
	viperConfig.SetConfigName(configName)
	viperConfig.AddConfigPath("./")
	if err := viperConfig.ReadInConfig(); err != nil {
		return nil, err
	}
	return fromViper(viperConfig)
}

// LoadConfigFile loads the configuration file at path.
func LoadConfigFile(configPrefix, path string) (*Config, error) {
	viperConfig := viper.New()
	setupEnv(viperConfig, configPrefix)
	viperConfig.SetConfigFile(path)
	if err := viperConfig.ReadInConfig(); err != nil {
		return nil, err
	}
	return fromViper(viperConfig)
}

func setupEnv(viperConfig *viper.Viper, configPrefix string) {
	// for environment variables
	viperConfig.SetEnvPrefix(configPrefix)
	viperConfig.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viperConfig.SetEnvKeyReplacer(replacer)
}

func fromViper(viperConfig *viper.Viper) (*Config, error) {
	privKeyED, err := hex.DecodeString(viperConfig.GetString("privkeyed"))
	if err != nil {
		return nil, errors.Wrap(err, "privkeyed")
	}
	if len(privKeyED) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("privkeyed has %d bytes", len(privKeyED))
	}

	tsPubKeyAsBytes, err := hex.DecodeString(viperConfig.GetString("tspubkey"))
	if err != nil {
		return nil, errors.Wrap(err, "tspubkey")
	}
	tsPubKey, err := sign.DecodeVerificationKey(tsPubKeyAsBytes)
	if err != nil {
		return nil, err
	}

	tsShareAsBytes, err := hex.DecodeString(viperConfig.GetString("tsshare"))
	if err != nil {
		return nil, errors.Wrap(err, "tsshare")
	}
	tsShareKey, err := sign.DecodeSecretKey(tsShareAsBytes)
	if err != nil {
		return nil, err
	}

	conf := &Config{
		Name:            viperConfig.GetString("name"),
		Index:           tsShareKey.Index(),
		MaxPool:         viperConfig.GetInt("max_pool"),
		LogLevel:        viperConfig.GetInt("log_level"),
		Rounds:          viperConfig.GetInt("rounds"),
		BatchSize:       viperConfig.GetInt("batch_size"),
		SyncLag:         uint64(viperConfig.GetInt("sync_lag")),
		SyncWindow:      uint64(viperConfig.GetInt("sync_window")),
		PollInterval:    viperConfig.GetDuration("poll_interval"),
		QuorumTimeout:   viperConfig.GetDuration("quorum_timeout"),
		RejectByzantine: viperConfig.GetBool("reject_byzantine"),
		CoinCacheSize:   viperConfig.GetInt("coin_cache_size"),
		MetricsAddr:     viperConfig.GetString("metrics_addr"),
		PrivateKey:      privKeyED,
		TsPublicKey:     tsPubKey,
		TsPrivateKey:    tsShareKey,
	}
	if index := viperConfig.GetInt("index"); index != 0 && index != conf.Index {
		return nil, errors.Errorf("index %d does not match the threshold share of index %d", index, conf.Index)
	}

	peersP2PPortMapString := viperConfig.GetStringMap("peers_p2p_port")
	peersIPsMapString := viperConfig.GetStringMap("cluster_ips")
	peersIndexMapString := viperConfig.GetStringMap("cluster_index")
	pubKeyMapString := viperConfig.GetStringMap("cluster_pubkeyed")
	pubKeyMap := make(map[string]ed25519.PublicKey, len(pubKeyMapString))
	clusterPort := make(map[string]int, len(pubKeyMapString))
	clusterIndex := make(map[string]int, len(pubKeyMapString))
	clusterAddrWithPorts := make(map[string]string, len(pubKeyMapString))
	for name, pkAsInterface := range pubKeyMapString {
		pkAsString, ok := pkAsInterface.(string)
		if !ok {
			return nil, errors.New("public key in the config file cannot be decoded correctly")
		}
		pubKey, err := hex.DecodeString(pkAsString)
		if err != nil {
			return nil, errors.Wrapf(err, "public key of %s", name)
		}
		pubKeyMap[name] = pubKey

		addr, ok := peersIPsMapString[name].(string)
		if !ok {
			return nil, errors.Errorf("cluster_ips has no address for %s", name)
		}
		port, err := cast.ToIntE(peersP2PPortMapString[name])
		if err != nil {
			return nil, errors.Wrapf(err, "peers_p2p_port of %s", name)
		}
		clusterPort[name] = port
		clusterAddrWithPorts[name] = addr + ":" + strconv.Itoa(port)

		if raw, ok := peersIndexMapString[name]; ok {
			index, err := cast.ToIntE(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "cluster_index of %s", name)
			}
			clusterIndex[name] = index
		} else {
			// nodeK holds the share of index K+1 unless cluster_index says otherwise
			id, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
			if err != nil {
				return nil, errors.Errorf("cluster_index has no index for %s", name)
			}
			clusterIndex[name] = id + 1
		}
	}
	if clusterIndex[conf.Name] != conf.Index {
		return nil, errors.Errorf("%s is listed with index %d but holds the share of index %d",
			conf.Name, clusterIndex[conf.Name], conf.Index)
	}

	conf.PublicKeyMap = pubKeyMap
	conf.ClusterPort = clusterPort
	conf.ClusterIndex = clusterIndex
	conf.ClusterAddrWithPorts = clusterAddrWithPorts
	return conf, nil
}
