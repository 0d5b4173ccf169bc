package vlllm

import "aiglasses-server-go/src/core/analysis"

// 每种分析模式一条固定指令模板，要求模型按标准JSON结构回复
var modePrompts = map[analysis.Mode]string{
	analysis.ModeTranslate: `请分析这张图片中的文字内容，并按以下JSON格式返回结果：
{
    "original_text": "原文",
    "translated_text": "中文翻译",
    "source_language": "源语言代码"
}`,
	analysis.ModeCalorie: `请分析这张食物图片，识别食物类型和估算卡路里，并按以下JSON格式返回结果：
{
    "total_calories": 总卡路里数值,
    "food_items": [
        {
            "food_name": "食物名称",
            "calories": 卡路里数值,
            "confidence": 置信度(0-1)
        }
    ]
}`,
	analysis.ModeNavigate: `请分析这张图片中的障碍物，评估安全状况，并按以下JSON格式返回结果：
{
    "obstacles": [
        {
            "type": "障碍物类型",
            "distance": 估计距离(米),
            "position": {"x": 横向位置, "y": 纵向位置}
        }
    ],
    "warning_level": "safe/caution/danger",
    "safe_path": {
        "direction": "left/right/forward",
        "angle": 建议转向角度,
        "confidence": 建议可信度(0-1)
    }
}`,
}

// PromptFor 返回指定模式的指令模板
func PromptFor(mode analysis.Mode) string {
	if prompt, ok := modePrompts[mode]; ok {
		return prompt
	}
	return "请分析这张图片。"
}
