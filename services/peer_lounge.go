package services

// 发现的对端节点等候室
// 组播和 TCP 发现到的节点信息集中存放在这里，超过存活时间没有刷新就移除

import (
	"container/heap"
	"sync"
	"time"

	"github.com/somebottle/cooperation-daemon/entities"
)

// TTL 堆元素
type TTLHeapItem struct {
	// 节点 IP
	ip string
	// 过期时间
	expireAt time.Time
}

// TTL 堆 (小根堆，越早过期的在前面)
type TTLHeap []*TTLHeapItem

// 实现 heap 接口

func (th *TTLHeap) Len() int {
	return len(*th)
}

func (th *TTLHeap) Less(i, j int) bool {
	return (*th)[i].expireAt.Before((*th)[j].expireAt)
}

func (th *TTLHeap) Swap(i, j int) {
	(*th)[i], (*th)[j] = (*th)[j], (*th)[i]
}

func (th *TTLHeap) Push(x any) {
	*th = append(*th, x.(*TTLHeapItem))
}

func (th *TTLHeap) Pop() any {
	item := (*th)[len(*th)-1]
	*th = (*th)[:len(*th)-1]
	return item
}

type peerEntry struct {
	info     entities.NodeInfo
	expireAt time.Time
}

// PeerLounge 对端节点等候室
type PeerLounge struct {
	// heap, map 更新锁
	mutex    sync.Mutex
	peers    map[string]*peerEntry
	ttlHeap  *TTLHeap
	lifetime time.Duration
}

// NewPeerLounge 创建对端节点等候室
//
// lifetime: 节点信息的存活时间
func NewPeerLounge(lifetime time.Duration) *PeerLounge {
	ttlHeap := &TTLHeap{}
	heap.Init(ttlHeap)
	return &PeerLounge{
		peers:    make(map[string]*peerEntry),
		ttlHeap:  ttlHeap,
		lifetime: lifetime,
	}
}

// Upsert 记录或刷新节点信息，返回节点是否是新出现或信息有变化
func (pl *PeerLounge) Upsert(ip string, info entities.NodeInfo, now time.Time) bool {
	pl.mutex.Lock()
	defer pl.mutex.Unlock()
	expireAt := now.Add(pl.lifetime)
	entry, exists := pl.peers[ip]
	changed := !exists || !sameNode(entry.info, info)
	pl.peers[ip] = &peerEntry{info: info, expireAt: expireAt}
	// 旧的堆元素在清理时按 map 中的过期时间判断，不需要删除
	heap.Push(pl.ttlHeap, &TTLHeapItem{ip: ip, expireAt: expireAt})
	return changed
}

func sameNode(a entities.NodeInfo, b entities.NodeInfo) bool {
	if a.Hostname != b.Hostname || a.ShareConnectIP != b.ShareConnectIP || a.Version != b.Version || len(a.Apps) != len(b.Apps) {
		return false
	}
	for i := range a.Apps {
		if a.Apps[i] != b.Apps[i] {
			return false
		}
	}
	return true
}

// Prune 移除所有已过期的节点，返回被移除节点的信息
func (pl *PeerLounge) Prune(now time.Time) []entities.NodeInfo {
	pl.mutex.Lock()
	defer pl.mutex.Unlock()
	var expired []entities.NodeInfo
	for pl.ttlHeap.Len() > 0 {
		// 把过期的都清理掉，直至堆顶未过期
		item := (*pl.ttlHeap)[0]
		if item.expireAt.After(now) {
			break
		}
		heap.Pop(pl.ttlHeap)
		entry, ok := pl.peers[item.ip]
		if !ok || entry.expireAt.After(now) {
			// 节点已被刷新
			continue
		}
		delete(pl.peers, item.ip)
		expired = append(expired, entry.info)
	}
	return expired
}

// Get 获取节点信息
func (pl *PeerLounge) Get(ip string) (entities.NodeInfo, bool) {
	pl.mutex.Lock()
	defer pl.mutex.Unlock()
	entry, ok := pl.peers[ip]
	if !ok {
		return entities.NodeInfo{}, false
	}
	return entry.info, true
}

// Len 当前记录的节点数
func (pl *PeerLounge) Len() int {
	pl.mutex.Lock()
	defer pl.mutex.Unlock()
	return len(pl.peers)
}
