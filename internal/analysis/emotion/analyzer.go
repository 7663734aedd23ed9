package emotion

import (
	"strings"
)

// Label 表示推理后端返回的面部情绪标签。
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Fear     Label = "fear"
	Surprise Label = "surprise"
	Disgust  Label = "disgust"
)

// Default is substituted whenever no label could be derived.
const Default = Neutral

// ParseLabel normalizes a backend label. Unknown labels are reported as not ok but
// still returned lower-cased, since the backend owns the label vocabulary.
func ParseLabel(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case Neutral, Happy, Sad, Angry, Fear, Surprise, Disgust:
		return normalized, true
	case "":
		return Default, false
	default:
		return normalized, false
	}
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"happy", "glad", "great", "awesome", "amazing", "love", "thanks", "thank you", "haha", "lol",
		"excited", "yay", "wonderful", "fantastic", "good news", "开心", "高兴", "哈哈",
	},
	Sad: {
		"sad", "unhappy", "depressed", "lonely", "cry", "crying", "hurt", "miss", "lost", "tired of",
		"hopeless", "down", "upset", "难过", "伤心", "失落",
	},
	Angry: {
		"angry", "furious", "mad", "annoyed", "hate", "pissed", "rage", "fed up", "sick of", "生气", "愤怒",
	},
	Fear: {
		"afraid", "scared", "anxious", "anxiety", "worried", "nervous", "panic", "fear", "terrified", "害怕", "担心",
	},
	Surprise: {
		"wow", "whoa", "no way", "unbelievable", "really?", "surprised", "shocked", "哇",
	},
	Disgust: {
		"gross", "disgusting", "yuck", "nasty", "恶心",
	},
}

// Analyze 根据用户输入的文字推断情绪，仅在帧上传失败且开启文字兜底时使用。
func Analyze(text string) Label {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Default
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	if exclamations := strings.Count(text, "!"); exclamations > 0 {
		scores[Surprise] += exclamations
		if scores[Happy] > 0 {
			scores[Happy] += exclamations
		}
	}

	best := Default
	bestScore := 0
	// 固定遍历顺序，保证同分时结果稳定。
	for _, label := range []Label{Happy, Sad, Angry, Fear, Surprise, Disgust} {
		if s := scores[label]; s > bestScore {
			best = label
			bestScore = s
		}
	}
	return best
}
