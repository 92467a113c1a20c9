package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gitzhang10/alephdag/sign"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// writeConfig writes the configuration of node `self` of a four-node cluster, the way
// config_gen does, and returns its path.
func writeConfig(t *testing.T, self int, edit func(v *viper.Viper)) string {
	vk, sks, err := sign.GenerateKeys(3, 4)
	require.NoError(t, err)
	vkAsBytes, err := sign.EncodeVerificationKey(vk)
	require.NoError(t, err)
	shareAsBytes, err := sign.EncodeSecretKey(sks[self])
	require.NoError(t, err)

	ips := make(map[string]string)
	ports := make(map[string]int)
	indices := make(map[string]int)
	pubKeys := make(map[string]string)
	var privKey string
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("node%d", i)
		priv, pub := sign.GenED25519Keys()
		ips[name] = "127.0.0.1"
		ports[name] = 8000 + 10*i
		indices[name] = i + 1
		pubKeys[name] = hex.EncodeToString(pub)
		if i == self {
			privKey = hex.EncodeToString(priv)
		}
	}

	v := viper.New()
	v.Set("name", fmt.Sprintf("node%d", self))
	v.Set("index", self+1)
	v.Set("max_pool", 10)
	v.Set("log_level", 3)
	v.Set("rounds", 20)
	v.Set("batch_size", 50)
	v.Set("sync_lag", 2)
	v.Set("sync_window", 4)
	v.Set("poll_interval", "50ms")
	v.Set("quorum_timeout", "30s")
	v.Set("reject_byzantine", true)
	v.Set("coin_cache_size", 512)
	v.Set("metrics_addr", ":9100")
	v.Set("cluster_ips", ips)
	v.Set("peers_p2p_port", ports)
	v.Set("cluster_index", indices)
	v.Set("cluster_pubkeyed", pubKeys)
	v.Set("privkeyed", privKey)
	v.Set("tsshare", hex.EncodeToString(shareAsBytes))
	v.Set("tspubkey", hex.EncodeToString(vkAsBytes))
	if edit != nil {
		edit(v)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, v.WriteConfigAs(path))
	return path
}

func TestConfigRead(t *testing.T) {
	config, err := LoadConfigFile("alephdag", writeConfig(t, 2, nil))
	require.NoError(t, err)

	require.Equal(t, "node2", config.Name)
	require.Equal(t, 3, config.Index)
	require.Equal(t, 10, config.MaxPool)
	require.Equal(t, 3, config.LogLevel)
	require.Equal(t, 20, config.Rounds)
	require.Equal(t, 50, config.BatchSize)
	require.Equal(t, uint64(2), config.SyncLag)
	require.Equal(t, uint64(4), config.SyncWindow)
	require.Equal(t, 50*time.Millisecond, config.PollInterval)
	require.Equal(t, 30*time.Second, config.QuorumTimeout)
	require.True(t, config.RejectByzantine)
	require.Equal(t, 512, config.CoinCacheSize)
	require.Equal(t, ":9100", config.MetricsAddr)

	require.Len(t, config.PublicKeyMap, 4)
	require.Equal(t, "127.0.0.1:8030", config.ClusterAddrWithPorts["node3"])
	require.Equal(t, 8010, config.ClusterPort["node1"])
	require.Equal(t, 1, config.ClusterIndex["node0"])
	require.Equal(t, 3, config.TsPublicKey.Threshold())
	require.Equal(t, 4, config.TsPublicKey.Parties())

	msg := []byte("round")
	share, err := config.TsPrivateKey.GenerateShare(msg)
	require.NoError(t, err)
	require.True(t, config.TsPublicKey.VerifyShare(share, config.Index, msg))

	sig := sign.SignEd25519(config.PrivateKey, msg)
	ok, err := sign.VerifySignEd25519(config.PublicKeyMap["node2"], msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConfigIndexFromName(t *testing.T) {
	config, err := LoadConfigFile("alephdag", writeConfig(t, 1, func(v *viper.Viper) {
		v.Set("cluster_index", map[string]int{})
	}))
	require.NoError(t, err)
	require.Equal(t, 4, config.ClusterIndex["node3"])
}

func TestConfigRejectsMismatchedIndex(t *testing.T) {
	_, err := LoadConfigFile("alephdag", writeConfig(t, 1, func(v *viper.Viper) {
		v.Set("index", 4)
	}))
	require.Error(t, err)

	_, err = LoadConfigFile("alephdag", writeConfig(t, 1, func(v *viper.Viper) {
		v.Set("cluster_index", map[string]int{"node0": 1, "node1": 3, "node2": 2, "node3": 4})
	}))
	require.Error(t, err)
}

func TestConfigRejectsBadKeys(t *testing.T) {
	_, err := LoadConfigFile("alephdag", writeConfig(t, 0, func(v *viper.Viper) {
		v.Set("privkeyed", "zz")
	}))
	require.Error(t, err)

	_, err = LoadConfigFile("alephdag", writeConfig(t, 0, func(v *viper.Viper) {
		v.Set("tsshare", "")
	}))
	require.Error(t, err)
}

func TestLoadConfigWithOverrides(t *testing.T) {
	path := writeConfig(t, 3, nil)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Dir(path)))
	defer func() {
		require.NoError(t, os.Chdir(wd))
	}()

	// values set on the viper, like bound flags, win over the file
	v := viper.New()
	v.Set("rounds", 7)
	config, err := LoadConfig(v, "alephdag", "config")
	require.NoError(t, err)
	require.Equal(t, "node3", config.Name)
	require.Equal(t, 4, config.Index)
	require.Equal(t, 7, config.Rounds)
	require.Equal(t, 50, config.BatchSize)

	config, err = LoadConfig(nil, "alephdag", "config")
	require.NoError(t, err)
	require.Equal(t, 20, config.Rounds)

	_, err = LoadConfig(nil, "alephdag", "missing")
	require.Error(t, err)
}
