package rag

import "errors"

var (
	// ErrStorage 表示文件缓存读写失败。
	ErrStorage = errors.New("storage error")
	// ErrIngest 表示文档解析、切分或向量化失败。
	ErrIngest = errors.New("ingest error")
	// ErrRetrieval 表示检索阶段失败。
	ErrRetrieval = errors.New("retrieval error")
	// ErrGeneration 表示 LLM 生成失败或返回空内容。
	ErrGeneration = errors.New("generation error")
)
