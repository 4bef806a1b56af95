package entities

// NodeInfo 局域网发现时交换的节点描述
type NodeInfo struct {
	Hostname string `json:"hostname"`
	IPv4     string `json:"ipv4"`
	// 正在进行共享连接的对端 IP，空表示空闲
	ShareConnectIP string   `json:"share_connect_ip"`
	Apps           []string `json:"apps"`
	Version        string   `json:"version"`
	Platform       string   `json:"platform"`
	Username       string   `json:"username"`
}
