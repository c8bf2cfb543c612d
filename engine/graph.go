package engine

import (
	"fmt"
	"strings"

	"github.com/hupe1980/recallgraph/core"
	"github.com/hupe1980/recallgraph/flow"
)

// Mermaid renders the turn state machine as a Mermaid flowchart.
func Mermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	fmt.Fprintf(&sb, "\t%s([%s])\n", core.StageEntry, core.StageEntry)
	for _, s := range []core.Stage{core.StageSummarize, core.StageChatbot, core.StageTools, core.StageSaveToolResult} {
		fmt.Fprintf(&sb, "\t%s[%s]\n", s, s)
	}
	fmt.Fprintf(&sb, "\t%s([%s])\n", core.StageDone, core.StageDone)

	fmt.Fprintf(&sb, "\t%s -.->|more than %d turns| %s\n", core.StageEntry, flow.SummarizeThreshold, core.StageSummarize)
	fmt.Fprintf(&sb, "\t%s -.->|otherwise| %s\n", core.StageEntry, core.StageChatbot)
	fmt.Fprintf(&sb, "\t%s --> %s\n", core.StageSummarize, core.StageChatbot)
	fmt.Fprintf(&sb, "\t%s -.->|tool calls| %s\n", core.StageChatbot, core.StageTools)
	fmt.Fprintf(&sb, "\t%s -.->|final answer| %s\n", core.StageChatbot, core.StageDone)
	fmt.Fprintf(&sb, "\t%s --> %s\n", core.StageTools, core.StageSaveToolResult)
	fmt.Fprintf(&sb, "\t%s --> %s\n", core.StageSaveToolResult, core.StageChatbot)
	return sb.String()
}
