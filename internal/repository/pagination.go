package repository

import "gorm.io/gorm"

// 结算侧列表查询单页上限，防止一次拉取全量订单或流水。
const maxPageSize = 200

// applyPagination 统一处理分页参数：页码从 1 起算，页大小超限时收敛到上限。
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}
