package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供数据源、上游地址与命中状态字段，供 /fetch 请求日志复用。
func RequestFields(source, upstream, requestID string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"source":     source,
		"upstream":   upstream,
		"request_id": requestID,
		"cache_hit":  cacheHit,
	}
}

// CacheFields 标记缓存事件及其文件名 key。
func CacheFields(action, key string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"key":    key,
	}
}
