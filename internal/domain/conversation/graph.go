package conversation

// 画布节点类型
const (
	NodeChat   = "chat"
	NodeTask   = "task"
	NodeIntent = "intent"
)

// GraphNode 画布图节点
// 消息和意图都是节点，parentNodeId 构成父指针树（每个节点恰有一个父节点）
type GraphNode struct {
	ID           string       `json:"id"`
	Type         string       `json:"type"`
	Title        string       `json:"title,omitempty"`
	Content      string       `json:"content,omitempty"`
	Timestamp    int64        `json:"timestamp,omitempty"`
	ParentNodeID string       `json:"parentNodeId,omitempty"`
	EditHistory  []EditRecord `json:"editHistory,omitempty"`
	X            float64      `json:"x,omitempty"`
	Y            float64      `json:"y,omitempty"`
}

// GraphEdge 画布图连线
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// CanvasGraph 每会话一份的画布图快照
type CanvasGraph struct {
	SessionID string      `json:"sessionId,omitempty"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges,omitempty"`
	UpdatedAt int64       `json:"updatedAt,omitempty"`
}

// NodeIndex 构建 id 索引，便于父链回溯
func (g *CanvasGraph) NodeIndex() map[string]*GraphNode {
	idx := make(map[string]*GraphNode, len(g.Nodes))
	for i := range g.Nodes {
		idx[g.Nodes[i].ID] = &g.Nodes[i]
	}
	return idx
}

// FindNode 按 id 查找节点，找不到返回 nil
func (g *CanvasGraph) FindNode(id string) *GraphNode {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// LineagePath 从 anchor 沿 parentNodeId 回溯到根，返回按时间顺序（根在前）的路径。
// 使用已访问集合作为环保护，maxDepth 限制回溯步数，脏数据不会造成死循环。
func LineagePath(index map[string]*GraphNode, anchorID string, maxDepth int) []*GraphNode {
	current, ok := index[anchorID]
	if !ok {
		return nil
	}

	visited := make(map[string]bool, maxDepth)
	var path []*GraphNode

	for current != nil && len(path) < maxDepth {
		if visited[current.ID] {
			break
		}
		visited[current.ID] = true
		path = append(path, current)

		if current.ParentNodeID == "" {
			break
		}
		parent, ok := index[current.ParentNodeID]
		if !ok {
			break
		}
		current = parent
	}

	// 反转为时间顺序
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// MessagesOnPath 过滤出路径上的消息类节点（chat/task），意图节点被透明跳过。
// 因为路径是一条父链，跳过意图节点后其父消息自然衔接。
func MessagesOnPath(path []*GraphNode) []Message {
	messages := make([]Message, 0, len(path))
	for _, node := range path {
		if node == nil || (node.Type != NodeChat && node.Type != NodeTask) {
			continue
		}
		role := RoleAssistant
		if node.Type == NodeChat && node.Title == "User" {
			role = RoleUser
		}
		messages = append(messages, Message{
			ID:           node.ID,
			Role:         role,
			Content:      node.Content,
			Timestamp:    node.Timestamp,
			ParentNodeID: node.ParentNodeID,
			EditHistory:  node.EditHistory,
		})
	}
	return messages
}
