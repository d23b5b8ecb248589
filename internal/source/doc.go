// Package source 维护可通过 /fetch/<name>/ 访问的上游数据源注册表。
//
// 内置数据源在 init() 中注册；配置文件里的 [[Source]] 可以新增数据源，
// 或按名称覆盖内置数据源的 BaseURL、描述与解压方式。
package source
