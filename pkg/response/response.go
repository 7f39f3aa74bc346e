package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess      = 1000 // Success
	CodeParamInvalid = 1001 // Request validation failed
	CodeNotFound     = 1002 // Entity not found
	CodeInternal     = 1003 // Internal error
)

// message
var msg = map[int]string{
	CodeSuccess:      "success",
	CodeParamInvalid: "invalid request",
	CodeNotFound:     "not found",
	CodeInternal:     "internal error",
}

func Message(code int) string {
	return msg[code]
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": CodeSuccess, "message": msg[CodeSuccess], "data": data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"code": CodeSuccess, "message": msg[CodeSuccess], "data": data})
}

func Error(c *gin.Context, status, code int, detail string) {
	c.JSON(status, gin.H{"code": code, "message": msg[code], "error": detail})
}
