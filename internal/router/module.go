package router

import "github.com/gin-gonic/gin"

// Module is a feature slice that registers its routes on a RouterGroup.
type Module interface {
	Register(rg *gin.RouterGroup)
}
