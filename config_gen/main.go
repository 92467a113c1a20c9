/*
Package main in the directory config_gen implements a tool to read configuration from a template,
and generate customized configuration files for each node.
The generated configuration file particularly contains the threshold key share of the node,
the shared verification key, and the ED25519 keys.
*/
package main

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gitzhang10/alephdag/network"
	"github.com/gitzhang10/alephdag/sign"
	"github.com/spf13/viper"
)

func main() {
	viperRead := viper.New()
	// for environment variables
	viperRead.SetEnvPrefix("")
	viperRead.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viperRead.SetEnvKeyReplacer(replacer)
	viperRead.SetConfigName("config_template")
	viperRead.AddConfigPath("./")
	err := viperRead.ReadInConfig()
	if err != nil {
		panic(err)
	}

	processCount := viperRead.GetInt("processes_per_ip") // the number of nodes on each machine
	if processCount < 1 {
		processCount = 1
	}

	// deal with the machines as a string map, ordered by their name
	ipMapInterface := viperRead.GetStringMap("IPs")
	p2pPortMapInterface := viperRead.GetStringMap("peers_p2p_port")
	machines := make([]string, 0, len(ipMapInterface))
	for machine := range ipMapInterface {
		machines = append(machines, machine)
	}
	sort.Strings(machines)

	// every machine runs processCount nodes, on ports 10 apart
	clusterIPs := make(map[string]string)
	clusterPorts := make(map[string]int)
	clusterIndex := make(map[string]int)
	var names []string
	for _, machine := range machines {
		addrAsString, ok := ipMapInterface[machine].(string)
		if !ok {
			panic("cluster in the config file cannot be decoded correctly")
		}
		portAsInt, ok := p2pPortMapInterface[machine].(int)
		if !ok {
			panic("peers_p2p_port does not match with cluster")
		}
		for j := 0; j < processCount; j++ {
			name := "node" + strconv.Itoa(len(names))
			clusterIPs[name] = addrAsString
			clusterPorts[name] = portAsInt + j*10
			clusterIndex[name] = len(names) + 1
			names = append(names, name)
		}
	}
	nodeNumber := len(names)

	// create the ED25519 keys
	privKeysED25519 := make(map[string]string, nodeNumber)
	pubKeysED25519 := make(map[string]string, nodeNumber)
	for _, name := range names {
		privKeyED, pubKeyED := sign.GenED25519Keys()
		pubKeysED25519[name] = hex.EncodeToString(pubKeyED)
		privKeysED25519[name] = hex.EncodeToString(privKeyED)
	}

	// create the threshold signature keys
	numT := network.QuorumSize(nodeNumber)
	tsPubKey, shares, err := sign.GenerateKeys(numT, nodeNumber)
	if err != nil {
		panic(err)
	}
	tsPubKeyAsBytes, err := sign.EncodeVerificationKey(tsPubKey)
	if err != nil {
		panic("fail encode the verification key")
	}

	// load simple parameter
	maxPool := viperRead.GetInt("max_pool")
	batchSize := viperRead.GetInt("batch_size")
	logLevel := viperRead.GetInt("log_level")
	rounds := viperRead.GetInt("rounds")
	syncLag := viperRead.GetInt("sync_lag")
	syncWindow := viperRead.GetInt("sync_window")
	pollInterval := viperRead.GetString("poll_interval")
	quorumTimeout := viperRead.GetString("quorum_timeout")
	rejectByzantine := viperRead.GetBool("reject_byzantine")
	coinCacheSize := viperRead.GetInt("coin_cache_size")
	metricsPort := viperRead.GetInt("metrics_port")
	fmt.Println("nodes:", nodeNumber, "threshold:", numT)

	// write to configure files
	for i, name := range names {
		viperWrite := viper.New()
		viperWrite.SetConfigFile(fmt.Sprintf("%s.yaml", name))
		shareAsBytes, err := sign.EncodeSecretKey(shares[i])
		if err != nil {
			panic("fail encode the share")
		}

		viperWrite.Set("name", name)
		viperWrite.Set("index", clusterIndex[name])
		viperWrite.Set("cluster_index", clusterIndex)
		viperWrite.Set("cluster_ips", clusterIPs)
		viperWrite.Set("peers_p2p_port", clusterPorts)
		viperWrite.Set("max_pool", maxPool)
		viperWrite.Set("batch_size", batchSize)
		viperWrite.Set("log_level", logLevel)
		viperWrite.Set("rounds", rounds)
		viperWrite.Set("sync_lag", syncLag)
		viperWrite.Set("sync_window", syncWindow)
		viperWrite.Set("poll_interval", pollInterval)
		viperWrite.Set("quorum_timeout", quorumTimeout)
		viperWrite.Set("reject_byzantine", rejectByzantine)
		viperWrite.Set("coin_cache_size", coinCacheSize)
		if metricsPort > 0 {
			viperWrite.Set("metrics_addr", ":"+strconv.Itoa(metricsPort+i))
		}
		viperWrite.Set("privkeyed", privKeysED25519[name])
		viperWrite.Set("cluster_pubkeyed", pubKeysED25519)
		viperWrite.Set("tsshare", hex.EncodeToString(shareAsBytes))
		viperWrite.Set("tspubkey", hex.EncodeToString(tsPubKeyAsBytes))
		if err := viperWrite.WriteConfig(); err != nil {
			panic(err)
		}
	}
}
