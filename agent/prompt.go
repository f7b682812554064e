package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	ai "github.com/spetersoncode/stockagent"
)

// ToolResultPrefix starts the user turn that carries a markup tool result.
const ToolResultPrefix = "工具调用结果:\n"

// Disclaimer closes every analysis.
const Disclaimer = "以上分析基于{数据时间}的公开数据，仅供参考。股市投资存在风险，过往表现不代表未来结果。投资者应结合自身情况谨慎决策，必要时咨询专业投资顾问。"

// SystemPrompt renders the system turn: role, date, tool catalogue, the
// markup call format (unless tools are advertised natively) and the
// analysis rules.
func SystemPrompt(tools []ai.Tool, now time.Time, native bool) string {
	var b strings.Builder

	b.WriteString("你是一名专业的股票分析助手，所有结论都必须建立在工具返回的真实数据之上。\n\n")
	fmt.Fprintf(&b, "当前日期: %s\n\n", now.Format("2006-01-02"))

	b.WriteString("## 基本原则\n")
	b.WriteString("1. 只使用工具返回的数据，不得编造任何数字或指标\n")
	b.WriteString("2. 区分数据事实与推测判断\n")
	b.WriteString("3. 说明数据的局限性与时效性，不做确定性预测\n")
	b.WriteString("4. 在回答末尾给出风险提示\n\n")

	b.WriteString("## 可用工具\n")
	b.WriteString(DescribeTools(tools))
	b.WriteString("\n")

	if !native {
		b.WriteString("## 调用工具的格式\n")
		b.WriteString("需要数据时，输出如下代码块（可以连续输出多个，按顺序执行）：\n")
		b.WriteString("<tool_call>\n{\n  \"name\": \"工具名称\",\n  \"parameters\": {\n    \"参数名\": \"参数值\"\n  }\n}\n</tool_call>\n")
		b.WriteString("工具结果会以\"工具调用结果:\"开头的消息返回给你。拿到足够数据后，直接给出最终分析，不要再输出 <tool_call>。\n\n")
	}

	b.WriteString("## 分析流程\n")
	b.WriteString("1. 明确用户关心的股票、时间范围与问题类型\n")
	b.WriteString("2. 按需收集价格、技术指标、财务、估值与新闻数据\n")
	b.WriteString("3. 技术面看指标数值与趋势，基本面看财务健康度，情绪面看新闻内容\n")
	b.WriteString("4. 标注数据来源与时间，给出多种情景而非单一结论\n\n")

	b.WriteString("## 严格要求\n")
	b.WriteString("- 工具返回错误或空数据时如实说明，可以换参数或换工具重试\n")
	b.WriteString("- 不对股价给出具体涨跌预测\n")
	b.WriteString("- 结尾使用以下免责声明：\n")
	b.WriteString("\"" + Disclaimer + "\"\n")

	return b.String()
}

// DescribeTools renders the tool catalogue as a bullet list with parameter schemas.
func DescribeTools(tools []ai.Tool) string {
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		if len(t.Parameters) == 0 {
			continue
		}
		var params map[string]any
		if err := json.Unmarshal(t.Parameters, &params); err != nil {
			continue
		}
		props, _ := params["properties"].(map[string]any)
		if len(props) == 0 {
			continue
		}
		required := map[string]bool{}
		if req, ok := params["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required[s] = true
				}
			}
		}
		for _, name := range sortedKeys(props) {
			p, _ := props[name].(map[string]any)
			typ, _ := p["type"].(string)
			desc, _ := p["description"].(string)
			flag := "可选"
			if required[name] {
				flag = "必填"
			}
			fmt.Fprintf(&b, "    - %s (%s, %s): %s\n", name, typ, flag, desc)
		}
	}
	return b.String()
}
